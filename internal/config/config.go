// Package config loads service configuration from an optional JSON file and
// environment variables.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Duration is a time.Duration that reads "90s" or "60m" from JSON.
type Duration struct {
	time.Duration
}

// UnmarshalJSON parses a Go duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config is the service configuration.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"`
	Port        int    `json:"port,omitempty"`
	LogMode     string `json:"log_mode,omitempty"` // dev or prod

	// Cross-replica event relay and page cache; empty disables both.
	RedisAddr          string   `json:"redis_addr,omitempty"`
	RedisChannelPrefix string   `json:"redis_channel_prefix,omitempty"`
	PageCacheTTL       Duration `json:"page_cache_ttl,omitempty"`

	// Triggers
	ScheduleCron   string   `json:"schedule_cron,omitempty"`
	PriceCheckCron string   `json:"price_check_cron,omitempty"`
	ReconcileCron  string   `json:"reconcile_cron,omitempty"`
	StaleJobAfter  Duration `json:"stale_job_after,omitempty"`

	// Ingestion
	ManualDefaultDays int      `json:"manual_default_days,omitempty"`
	ScheduledDays     int      `json:"scheduled_days,omitempty"`
	TargetConcurrency int      `json:"target_concurrency,omitempty"`
	ProviderCommand   string   `json:"provider_command,omitempty"`
	ProviderTimeout   Duration `json:"provider_timeout,omitempty"`

	// Price checks and webhooks
	BrowserFallback  bool     `json:"browser_fallback,omitempty"`
	BrowserTimeout   Duration `json:"browser_timeout,omitempty"`
	SweepConcurrency int      `json:"sweep_concurrency,omitempty"`
	WebhookTimeout   Duration `json:"webhook_timeout,omitempty"`

	// CredentialsKey is a base64 32-byte key for provider secrets at rest.
	CredentialsKey string `json:"credentials_key,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:               8080,
		LogMode:            "dev",
		RedisChannelPrefix: "purchase-tracker",
		PageCacheTTL:       Duration{30 * time.Minute},
		ScheduleCron:       "0 1 * * *",
		PriceCheckCron:     "0 */6 * * *",
		ReconcileCron:      "@every 5m",
		StaleJobAfter:      Duration{60 * time.Minute},
		ManualDefaultDays:  60,
		ScheduledDays:      3,
		TargetConcurrency:  1,
		ProviderTimeout:    Duration{20 * time.Minute},
		BrowserTimeout:     Duration{45 * time.Second},
		SweepConcurrency:   4,
		WebhookTimeout:     Duration{10 * time.Second},
	}
}

// LoadConfig reads a JSON file over the defaults.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Load builds the configuration: defaults, then the optional file at path,
// then environment overrides. The result is validated.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fromFile, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *fromFile
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	e := envReader{getenv: getenv}

	e.str("DATABASE_URL", &c.DatabaseURL)
	e.integer("PORT", &c.Port)
	e.str("LOG_MODE", &c.LogMode)
	e.str("REDIS_ADDR", &c.RedisAddr)
	e.str("REDIS_CHANNEL_PREFIX", &c.RedisChannelPrefix)
	e.duration("PAGE_CACHE_TTL", &c.PageCacheTTL)
	e.str("SCHEDULE_CRON", &c.ScheduleCron)
	e.str("PRICE_CHECK_CRON", &c.PriceCheckCron)
	e.str("RECONCILE_CRON", &c.ReconcileCron)
	e.duration("STALE_JOB_AFTER", &c.StaleJobAfter)
	e.integer("MANUAL_DEFAULT_DAYS", &c.ManualDefaultDays)
	e.integer("SCHEDULED_DAYS", &c.ScheduledDays)
	e.integer("TARGET_CONCURRENCY", &c.TargetConcurrency)
	e.str("PROVIDER_COMMAND", &c.ProviderCommand)
	e.duration("PROVIDER_TIMEOUT", &c.ProviderTimeout)
	e.boolean("BROWSER_FALLBACK", &c.BrowserFallback)
	e.duration("BROWSER_TIMEOUT", &c.BrowserTimeout)
	e.integer("SWEEP_CONCURRENCY", &c.SweepConcurrency)
	e.duration("WEBHOOK_TIMEOUT", &c.WebhookTimeout)
	e.str("CREDENTIALS_KEY", &c.CredentialsKey)

	return e.err
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535")
	}
	if c.ManualDefaultDays < 1 {
		return fmt.Errorf("config error: 'manual_default_days' must be positive")
	}
	if c.ScheduledDays < 1 {
		return fmt.Errorf("config error: 'scheduled_days' must be positive")
	}
	if c.TargetConcurrency < 1 {
		return fmt.Errorf("config error: 'target_concurrency' must be positive")
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("config error: 'sweep_concurrency' must be positive")
	}
	if c.StaleJobAfter.Duration <= 0 {
		return fmt.Errorf("config error: 'stale_job_after' must be positive")
	}
	if c.ProviderTimeout.Duration <= 0 || c.WebhookTimeout.Duration <= 0 {
		return fmt.Errorf("config error: timeouts must be positive")
	}

	for name, spec := range map[string]string{
		"schedule_cron":    c.ScheduleCron,
		"price_check_cron": c.PriceCheckCron,
		"reconcile_cron":   c.ReconcileCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("config error: invalid '%s' %q: %w", name, spec, err)
		}
	}

	if c.CredentialsKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.CredentialsKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("config error: 'credentials_key' must be 32 bytes of base64")
		}
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// envReader applies set variables and keeps the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *Duration) {
	v, ok := e.lookup(key)
	if !ok || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	dst.Duration = d
}
