// Package ratewindow implements the client-side request budget: a sliding
// time window of request timestamps that decides whether another remote
// check is permitted.
package ratewindow

import (
	"sync"
	"time"
)

// Window tracks request timestamps over a sliding span. A request is allowed
// while fewer than limit timestamps fall inside the span.
type Window struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	span       time.Duration
	now        func() time.Time
}

type Option func(*Window)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(w *Window) {
		w.now = now
	}
}

func New(limit int, span time.Duration, opts ...Option) *Window {
	w := &Window{
		limit: limit,
		span:  span,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow records and permits a request if the budget has room, or rejects it
// without recording otherwise.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.cleanup(now)

	if len(w.timestamps) >= w.limit {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Remaining reports how many requests the current window still permits.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cleanup(w.now())
	remaining := w.limit - len(w.timestamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetAt reports when the oldest tracked request leaves the window.
func (w *Window) ResetAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.cleanup(now)
	if len(w.timestamps) == 0 {
		return now
	}
	return w.timestamps[0].Add(w.span)
}

// cleanup drops timestamps that slid out of the window. Caller holds w.mu.
func (w *Window) cleanup(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
