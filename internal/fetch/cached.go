package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/purchase-tracker/internal/logging"
)

// DefaultPageCacheTTL is how long a fetched product page is reused.
const DefaultPageCacheTTL = 15 * time.Minute

// PageCache stores rendered pages by URL.
type PageCache interface {
	Get(ctx context.Context, url string) (string, bool, error)
	Set(ctx context.Context, url, html string, ttl time.Duration) error
}

// Fetcher retrieves the HTML of a product page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// HTTPFetcher fetches pages directly.
type HTTPFetcher struct {
	Options *Options
}

// Fetch implements Fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	return URL(ctx, url, f.Options)
}

// CachedFetcher wraps a Fetcher with a shared page cache so several users
// tracking the same product trigger a single request per sweep.
type CachedFetcher struct {
	next  Fetcher
	cache PageCache
	ttl   time.Duration
	log   *logging.Logger
}

// NewCachedFetcher creates a new cached fetcher.
func NewCachedFetcher(next Fetcher, cache PageCache, ttl time.Duration, log *logging.Logger) *CachedFetcher {
	if ttl <= 0 {
		ttl = DefaultPageCacheTTL
	}
	return &CachedFetcher{next: next, cache: cache, ttl: ttl, log: logging.OrNop(log)}
}

// Fetch returns a cached page when fresh, otherwise fetches and caches it.
// Cache failures are logged and never fail the fetch.
func (f *CachedFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if html, ok, err := f.cache.Get(ctx, url); err != nil {
		f.log.Warn("page cache read failed", "url", url, "error", err)
	} else if ok {
		return &Result{URL: url, HTML: html, StatusCode: 200}, nil
	}

	result, err := f.next.Fetch(ctx, url)
	if err != nil {
		return result, err
	}
	if err := f.cache.Set(ctx, url, result.HTML, f.ttl); err != nil {
		f.log.Warn("page cache write failed", "url", url, "error", err)
	}
	return result, nil
}

// RedisPageCache keeps pages in Redis under a hashed key.
type RedisPageCache struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisPageCache creates a cache using rdb.
func NewRedisPageCache(rdb *goredis.Client, prefix string) *RedisPageCache {
	if prefix == "" {
		prefix = "page:"
	}
	return &RedisPageCache{rdb: rdb, prefix: prefix}
}

func (c *RedisPageCache) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get implements PageCache.
func (c *RedisPageCache) Get(ctx context.Context, url string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(url)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached page: %w", err)
	}
	return val, true, nil
}

// Set implements PageCache.
func (c *RedisPageCache) Set(ctx context.Context, url, html string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.key(url), html, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache page: %w", err)
	}
	return nil
}
