package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_BurstProducesOneTrigger(t *testing.T) {
	d := New(30 * time.Millisecond)

	var calls atomic.Int32
	var last atomic.Value

	for _, v := range []string{"u", "us", "use", "user"} {
		value := v
		d.Trigger(func() {
			calls.Add(1)
			last.Store(value)
		})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// give a superseded timer a chance to misfire
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "exactly one trigger for the burst")
	assert.Equal(t, "user", last.Load(), "trigger carries the final value")
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	d := New(20 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_FlushBypassesDelay(t *testing.T) {
	d := New(time.Hour)

	var pending, flushed atomic.Int32
	d.Trigger(func() { pending.Add(1) })
	d.Flush(func() { flushed.Add(1) })

	assert.Equal(t, int32(1), flushed.Load(), "flush runs synchronously")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), pending.Load(), "pending trigger was cancelled")
}
