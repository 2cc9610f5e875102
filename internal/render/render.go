// Package render batches UI-affecting updates. All state machine output goes
// through a single pending slot that is merged per tick and flushed once, so
// a burst of transitions causes one visible mutation.
package render

import (
	"sync"
	"time"
)

// Tone classifies how a field message should be presented.
type Tone string

const (
	ToneNone     Tone = "none"
	ToneChecking Tone = "checking"
	ToneValid    Tone = "valid"
	ToneInvalid  Tone = "invalid"
	// ToneNotice marks recoverable conditions such as a spent request budget.
	ToneNotice Tone = "notice"
)

// Batch is a complete snapshot of a field's visible state. Applying the same
// batch twice yields the same visible result.
type Batch struct {
	Message       string
	Tone          Tone
	Suggestion    string
	SubmitEnabled bool
}

// Sink receives flushed batches. The UI layer implements this.
type Sink interface {
	Apply(Batch)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Batch)

func (f SinkFunc) Apply(b Batch) {
	f(b)
}

// Scheduler coalesces scheduled batches into a single pending slot and
// flushes it on a fixed cadence. A newer batch scheduled within the same
// tick replaces the older one entirely.
type Scheduler struct {
	mu      sync.Mutex
	pending *Batch
	sink    Sink

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

type Option func(*Scheduler)

// WithInterval overrides the flush cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func NewScheduler(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:     sink,
		interval: 16 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the flush loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop()
}

// Stop halts the loop after flushing anything still pending.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// Schedule stores b as the pending batch, replacing any batch from the same
// tick that has not flushed yet.
func (s *Scheduler) Schedule(b Batch) {
	s.mu.Lock()
	s.pending = &b
	s.mu.Unlock()
}

// Flush applies the pending batch immediately, if any. The loop calls this
// each tick; tests and teardown paths may call it directly.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	b := s.pending
	s.pending = nil
	s.mu.Unlock()

	if b != nil {
		s.sink.Apply(*b)
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}
