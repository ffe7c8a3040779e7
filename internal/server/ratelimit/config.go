package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the limit applied to one route.
type EndpointConfig struct {
	Path   string        // exact path, or a prefix when it ends with "/"
	Method string        // HTTP method
	Limit  int           // requests per window
	Window time.Duration // refill window
	Burst  int           // bucket capacity, Limit when 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	Endpoints       []EndpointConfig
}

// LoadConfig reads RATE_LIMIT_* variables through getenv.
func LoadConfig(getenv func(string) string) *Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := envSource(getenv)

	if !env.boolean("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    env.integer("RATE_LIMIT_DEFAULT_LIMIT", 600),
		DefaultWindow:   env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		IdleTimeout:     time.Hour,
		Whitelist:       parseIPList(getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(getenv("RATE_LIMIT_BLACKLIST")),
		Endpoints:       DefaultEndpoints(env.integer("RATE_LIMIT_JOB_START_PER_HOUR", 12)),
	}
}

// DefaultEndpoints limits job starts, which spawn browser sessions, and the
// routes that make outbound requests or check passwords.
func DefaultEndpoints(jobStartsPerHour int) []EndpointConfig {
	return []EndpointConfig{
		// Job starts
		{Path: "/api/ingestion/run", Method: "POST", Limit: jobStartsPerHour, Window: time.Hour, Burst: 2},
		{Path: "/api/scheduler/run", Method: "GET", Limit: jobStartsPerHour, Window: time.Hour, Burst: 2},

		// Outbound requests
		{Path: "/api/tracked-items", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},
		{Path: "/api/settings/webhook/test", Method: "POST", Limit: 20, Window: time.Hour, Burst: 5},

		// Credential checks
		{Path: "/api/auth/", Method: "POST", Limit: 30, Window: time.Minute, Burst: 10},
	}
}

type envSource func(string) string

func (e envSource) integer(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(e(key))); err == nil {
		return n
	}
	return def
}

func (e envSource) boolean(key string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(e(key))); err == nil {
		return b
	}
	return def
}

func (e envSource) duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(e(key))); err == nil {
		return d
	}
	return def
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
