package proxy

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	count   int
	expires time.Time
}

// MemoryCounterStore keeps windowed counters in process memory. Suitable for
// a single edge instance; multi-instance deployments use the Redis store.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	now      func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]memoryCounter),
		now:      time.Now,
	}
}

// WithCounterNow overrides the clock, for deterministic expiry tests.
func WithCounterNow(s *MemoryCounterStore, now func() time.Time) *MemoryCounterStore {
	s.now = now
	return s
}

func (s *MemoryCounterStore) Get(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if s.now().After(c.expires) {
		delete(s.counters, key)
		return 0, nil
	}
	return c.count, nil
}

func (s *MemoryCounterStore) Put(ctx context.Context, key string, count int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[key] = memoryCounter{count: count, expires: s.now().Add(ttl)}

	// opportunistic sweep keeps the map from accumulating dead windows
	if len(s.counters) > 1024 {
		now := s.now()
		for k, c := range s.counters {
			if now.After(c.expires) {
				delete(s.counters, k)
			}
		}
	}
	return nil
}
