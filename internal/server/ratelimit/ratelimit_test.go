package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testLimiter(cfg *Config, c *clock) *Limiter {
	l := NewLimiter(cfg)
	l.now = c.now
	return l
}

func jobStartConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Endpoints:     DefaultEndpoints(12),
	}
}

func TestLimiter_JobStartBurstThenRefill(t *testing.T) {
	c := newClock()
	l := testLimiter(jobStartConfig(), c)
	defer l.Stop()

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("10.0.0.1", "/api/ingestion/run", "POST")
		require.True(t, ok, "request %d", i+1)
	}
	ok, info := l.Allow("10.0.0.1", "/api/ingestion/run", "POST")
	assert.False(t, ok)
	assert.Equal(t, 12, info.Limit)
	assert.InDelta(t, (5 * time.Minute).Seconds(), info.RetryAfter.Seconds(), 0.01)

	// 12 per hour refills one token every 5 minutes
	c.advance(5*time.Minute + time.Second)
	ok, _ = l.Allow("10.0.0.1", "/api/ingestion/run", "POST")
	assert.True(t, ok)
}

func TestLimiter_ClientsAndRoutesAreIndependent(t *testing.T) {
	c := newClock()
	l := testLimiter(jobStartConfig(), c)
	defer l.Stop()

	for i := 0; i < 2; i++ {
		l.Allow("10.0.0.1", "/api/ingestion/run", "POST")
	}
	ok, _ := l.Allow("10.0.0.1", "/api/ingestion/run", "POST")
	require.False(t, ok)

	ok, _ = l.Allow("10.0.0.2", "/api/ingestion/run", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1", "/api/scheduler/run", "GET")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1", "/api/tracked-items", "GET")
	assert.True(t, ok)
}

func TestLimiter_PrefixRoutesShareBucket(t *testing.T) {
	c := newClock()
	cfg := jobStartConfig()
	cfg.Endpoints = []EndpointConfig{{Path: "/api/auth/", Method: "POST", Limit: 2, Window: time.Minute}}
	l := testLimiter(cfg, c)
	defer l.Stop()

	l.Allow("10.0.0.1", "/api/auth/login", "POST")
	l.Allow("10.0.0.1", "/api/auth/register", "POST")
	ok, _ := l.Allow("10.0.0.1", "/api/auth/login", "POST")
	assert.False(t, ok)
}

func TestLimiter_ListsAndDisabled(t *testing.T) {
	cfg := jobStartConfig()
	cfg.Whitelist = map[string]bool{"127.0.0.1": true}
	cfg.Blacklist = map[string]bool{"6.6.6.6": true}
	l := testLimiter(cfg, newClock())
	defer l.Stop()

	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("127.0.0.1", "/api/ingestion/run", "POST")
		assert.True(t, ok)
	}
	ok, _ := l.Allow("6.6.6.6", "/health", "GET")
	assert.False(t, ok)

	off := NewLimiter(&Config{Enabled: false})
	ok, _ = off.Allow("6.6.6.6", "/api/ingestion/run", "POST")
	assert.True(t, ok)
	off.Stop()
	off.Stop()
}

func TestLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	c := newClock()
	l := testLimiter(jobStartConfig(), c)
	defer l.Stop()

	l.Allow("10.0.0.1", "/api/ingestion/run", "POST")
	l.Allow("10.0.0.2", "/api/tracked-items", "GET")
	assert.Equal(t, 0, l.cleanup())

	c.advance(2 * time.Hour)
	assert.Equal(t, 2, l.cleanup())
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpoints(12)

	assert.Equal(t, 0, MatchEndpoint("/health", "GET", configs).Limit)
	assert.Equal(t, "/api/ingestion/run", MatchEndpoint("/api/ingestion/run", "POST", configs).Path)
	assert.Equal(t, "/api/auth/", MatchEndpoint("/api/auth/login", "POST", configs).Path)
	assert.Nil(t, MatchEndpoint("/api/ingestion/run", "GET", configs))
	assert.Nil(t, MatchEndpoint("/api/tracked-items/123", "DELETE", configs))
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_WHITELIST":          "127.0.0.1, 10.0.0.1",
		"RATE_LIMIT_JOB_START_PER_HOUR": "6",
		"RATE_LIMIT_DEFAULT_WINDOW":     "30s",
	}
	cfg := LoadConfig(func(k string) string { return env[k] })
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.True(t, cfg.Whitelist["10.0.0.1"])
	assert.Equal(t, 6, MatchEndpoint("/api/ingestion/run", "POST", cfg.Endpoints).Limit)

	off := LoadConfig(func(k string) string {
		if k == "RATE_LIMIT_ENABLED" {
			return "false"
		}
		return ""
	})
	assert.False(t, off.Enabled)
}
