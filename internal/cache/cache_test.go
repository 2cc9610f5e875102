package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, maxEntries int) (*Cache, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(maxEntries, WithMemoryNow(clock.Now))
	c := New(store,
		WithTTLs(10*time.Minute, 2*time.Minute),
		WithNow(clock.Now),
	)
	return c, store, clock
}

func TestCache_TTLBoundaries(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCache(t, 0)

	c.Record(ctx, "+491701234567", true)

	clock.Advance(10*time.Minute - time.Millisecond)
	result, ok := c.Lookup(ctx, "+491701234567")
	require.True(t, ok, "entry should be served just before expiry")
	assert.True(t, result)

	clock.Advance(2 * time.Millisecond)
	_, ok = c.Lookup(ctx, "+491701234567")
	assert.False(t, ok, "entry should be gone just after expiry")
}

func TestCache_FailureTTLShorterThanSuccess(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCache(t, 0)

	c.Record(ctx, "bad@example.com", false)

	clock.Advance(2*time.Minute + time.Second)
	_, ok := c.Lookup(ctx, "bad@example.com")
	assert.False(t, ok, "failure entries expire on the failure TTL")
}

func TestCache_CapacityEvictsOldestWritten(t *testing.T) {
	ctx := context.Background()
	c, store, clock := newTestCache(t, 3)

	for i := 0; i < 4; i++ {
		c.Record(ctx, fmt.Sprintf("value-%d", i), true)
		clock.Advance(time.Second)
	}

	assert.Equal(t, 3, store.Len())
	_, ok := c.Lookup(ctx, "value-0")
	assert.False(t, ok, "earliest-written entry is evicted first")
	_, ok = c.Lookup(ctx, "value-3")
	assert.True(t, ok)
}

type failingStore struct {
	err error
}

func (s *failingStore) Get(context.Context, string) (*Entry, error) {
	return nil, s.err
}

func (s *failingStore) Set(context.Context, string, Entry, time.Duration) error {
	return s.err
}

func TestCache_DegradesToNoopOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	c := New(&failingStore{err: errors.New("quota exceeded")})

	c.Record(ctx, "value", true)
	assert.True(t, c.Disabled())

	// subsequent calls are plain no-ops, never errors
	_, ok := c.Lookup(ctx, "value")
	assert.False(t, ok)
	c.Record(ctx, "other", false)
}

func TestCache_EmptyValueNeverStored(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newTestCache(t, 0)

	c.Record(ctx, "", true)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_LazyExpiryOnGet(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(0, WithMemoryNow(clock.Now))

	entry := Entry{Result: true, Expiry: clock.now.Add(time.Minute), WrittenAt: clock.now}
	require.NoError(t, store.Set(ctx, KeyPrefix+"v", entry, time.Minute))

	clock.Advance(2 * time.Minute)
	got, err := store.Get(ctx, KeyPrefix+"v")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, store.Len())
}
