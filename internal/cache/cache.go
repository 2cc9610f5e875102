// Package cache is the local expiring verdict store. Successful and failed
// verdicts carry different TTLs; storage failures silently disable the cache
// so validation keeps working without it.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"fieldgate/internal/platform/metrics"
)

// KeyPrefix namespaces every cache entry.
const KeyPrefix = "fieldgate:verdict:"

// Entry is the persisted schema: boolean-reduced verdict plus bookkeeping.
type Entry struct {
	Result    bool      `json:"result"`
	Expiry    time.Time `json:"expiry"`
	WrittenAt time.Time `json:"timestamp"`
}

// Store persists entries. Implementations must return (nil, nil) on a miss;
// any error is treated as storage unavailability by the Cache.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// Cache applies TTL policy over a Store and degrades to a no-op once the
// store errors, so a broken backend can never break validation.
type Cache struct {
	store      Store
	successTTL time.Duration
	failureTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	disabled   atomic.Bool
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func WithTTLs(success, failure time.Duration) Option {
	return func(c *Cache) {
		c.successTTL = success
		c.failureTTL = failure
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		successTTL: 10 * time.Minute,
		failureTTL: 2 * time.Minute,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the boolean-reduced verdict for a value. ok is false on a
// miss, an expired entry, or a disabled cache.
func (c *Cache) Lookup(ctx context.Context, value string) (result bool, ok bool) {
	if c.disabled.Load() || value == "" {
		return false, false
	}

	entry, err := c.store.Get(ctx, KeyPrefix+value)
	if err != nil {
		c.disable(err)
		return false, false
	}
	if entry == nil {
		c.metrics.IncCacheMiss()
		return false, false
	}
	if !entry.Expiry.After(c.now()) {
		// lazy expiry: stale reads count as misses
		c.metrics.IncCacheMiss()
		return false, false
	}

	c.metrics.IncCacheHit()
	return entry.Result, true
}

// Record stores a boolean-reduced verdict under the value's key, choosing the
// TTL by result.
func (c *Cache) Record(ctx context.Context, value string, result bool) {
	if c.disabled.Load() || value == "" {
		return
	}

	ttl := c.failureTTL
	if result {
		ttl = c.successTTL
	}

	now := c.now()
	entry := Entry{
		Result:    result,
		Expiry:    now.Add(ttl),
		WrittenAt: now,
	}
	if err := c.store.Set(ctx, KeyPrefix+value, entry, ttl); err != nil {
		c.disable(err)
	}
}

func (c *Cache) disable(err error) {
	if c.disabled.CompareAndSwap(false, true) {
		c.logger.Warn("verdict cache disabled after storage failure", "error", err)
	}
}

// Disabled reports whether the cache has degraded to a no-op.
func (c *Cache) Disabled() bool {
	return c.disabled.Load()
}
