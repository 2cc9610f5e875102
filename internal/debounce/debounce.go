// Package debounce converts a burst of input events into at most one trigger
// per quiet period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer restarts a fixed-delay timer on every Trigger call; only the
// function from the last call before a full quiet period runs.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
}

func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn after the quiet period, cancelling any pending
// schedule. fn runs on the timer goroutine.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Cancel drops any pending trigger.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush cancels any pending trigger and runs fn immediately on the calling
// goroutine. Used by the blur path, which must not wait out the quiet period.
func (d *Debouncer) Flush(fn func()) {
	d.Cancel()
	fn()
}
