// Package cache keeps the terms extracted from catalog pages in Redis so a
// page is fetched and parsed once per TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/mfc-shop/mfc-shop/internal/terms"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	"github.com/mfc-shop/mfc-shop/pkg/metrics"
	pkgredis "github.com/mfc-shop/mfc-shop/pkg/redis"
)

const keyPrefix = "terms:"

// TermCache maps page URLs to their extracted terms.
type TermCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a TermCache. m may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *TermCache {
	return &TermCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "term-cache"),
	}
}

// Get returns the cached terms of pageURL. Redis errors count as misses.
func (c *TermCache) Get(ctx context.Context, pageURL string) (*terms.Terms, bool) {
	key := buildKey(pageURL)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	t := terms.New()
	if err := json.Unmarshal([]byte(data), t); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "url", pageURL, "key", key)
	return t, true
}

// Set stores t for pageURL. Failures are logged and otherwise ignored.
func (c *TermCache) Set(ctx context.Context, pageURL string, t *terms.Terms) {
	key := buildKey(pageURL)
	data, err := json.Marshal(t)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, string(data), c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached terms of pageURL, or runs computeFn once
// across concurrent callers and caches its result. The bool reports a
// cache hit.
func (c *TermCache) GetOrCompute(
	ctx context.Context,
	pageURL string,
	computeFn func() (*terms.Terms, error),
) (*terms.Terms, bool, error) {
	if t, ok := c.Get(ctx, pageURL); ok {
		return t, true, nil
	}
	key := buildKey(pageURL)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		t, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, pageURL, t)
		return t, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*terms.Terms), false, nil
}

// Invalidate drops every cached page.
func (c *TermCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since start.
func (c *TermCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *TermCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *TermCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(pageURL string) string {
	hash := sha256.Sum256([]byte(NormalizeURL(pageURL)))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// NormalizeURL reduces equivalent spellings of a page address to one form:
// lower-case scheme and host, no fragment, no trailing slash and sorted
// query parameters. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = u.Query().Encode()
	return u.String()
}
