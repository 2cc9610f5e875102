package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. Expired entries are removed lazily on
// read; writes past capacity evict the oldest entries by write timestamp.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]Entry
	maxEntries int
	evicted    int
	now        func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithMemoryNow overrides the clock, for tests.
func WithMemoryNow(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a memory store holding at most maxEntries entries.
// Zero or negative means unbounded.
func NewMemoryStore(maxEntries int, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !entry.Expiry.After(s.now()) {
		delete(s.entries, key)
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	s.prune()
	return nil
}

// Len reports the current entry count, pruning expired entries first.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if !entry.Expiry.After(now) {
			delete(s.entries, key)
			s.evicted++
		}
	}
	return len(s.entries)
}

// Evicted reports how many entries were removed by expiry or capacity.
func (s *MemoryStore) Evicted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// prune removes expired entries, then the oldest-written entries until the
// store is at or under capacity. Caller must hold s.mu.
func (s *MemoryStore) prune() {
	now := s.now()
	for key, entry := range s.entries {
		if !entry.Expiry.After(now) {
			delete(s.entries, key)
			s.evicted++
		}
	}

	if s.maxEntries <= 0 {
		return
	}
	for len(s.entries) > s.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, entry := range s.entries {
			if oldestKey == "" || entry.WrittenAt.Before(oldest) {
				oldestKey = key
				oldest = entry.WrittenAt
			}
		}
		delete(s.entries, oldestKey)
		s.evicted++
	}
}
