package queue

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_LIFODispatch(t *testing.T) {
	q := New(WithConcurrency(1), WithCapacity(10))
	defer q.Close()

	var mu sync.Mutex
	var order []string

	gate := make(chan struct{})
	release := func() { close(gate) }

	// first job occupies the only slot so later enqueues stay pending
	require.True(t, q.Enqueue("blocker", func(ctx context.Context) {
		<-gate
	}))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, v := range []string{"a", "b", "c"} {
		value := v
		wg.Add(1)
		require.True(t, q.Enqueue(value, func(ctx context.Context) {
			mu.Lock()
			order = append(order, value)
			mu.Unlock()
			wg.Done()
		}))
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued jobs did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c", "b", "a"}, order, "most recently queued runs first")
}

func TestQueue_CapacityDropsSilently(t *testing.T) {
	q := New(WithConcurrency(1), WithCapacity(2))
	defer q.Close()

	gate := make(chan struct{})
	require.True(t, q.Enqueue("blocker", func(ctx context.Context) { <-gate }))

	assert.True(t, q.Enqueue("a", func(ctx context.Context) {}))
	assert.True(t, q.Enqueue("b", func(ctx context.Context) {}))
	assert.False(t, q.Enqueue("c", func(ctx context.Context) {}), "beyond capacity is a no-op")
	assert.Equal(t, 2, q.Pending())

	close(gate)
}

func TestQueue_EnqueueSupersedesPendingSameValue(t *testing.T) {
	q := New(WithConcurrency(1), WithCapacity(5))
	defer q.Close()

	gate := make(chan struct{})
	require.True(t, q.Enqueue("blocker", func(ctx context.Context) { <-gate }))

	ran := make(chan string, 2)
	require.True(t, q.Enqueue("v", func(ctx context.Context) { ran <- "old" }))
	require.True(t, q.Enqueue("v", func(ctx context.Context) { ran <- "new" }))
	assert.Equal(t, 1, q.Pending(), "same-value job replaced, not stacked")

	close(gate)
	select {
	case got := <-ran:
		assert.Equal(t, "new", got)
	case <-time.After(2 * time.Second):
		t.Fatal("superseding job did not run")
	}

	select {
	case got := <-ran:
		t.Fatalf("superseded job ran: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_EnqueueCancelsRunningSameValue(t *testing.T) {
	q := New(WithConcurrency(2), WithCapacity(5))
	defer q.Close()

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.True(t, q.Enqueue("v", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	require.True(t, q.Enqueue("v", func(ctx context.Context) {}))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("running job was not cancelled by a newer same-value job")
	}
}

func TestQueue_CancelLeavesDispatchedJobsAlone(t *testing.T) {
	q := New(WithConcurrency(1), WithCapacity(5))
	defer q.Close()

	started := make(chan struct{})
	interrupted := make(chan struct{}, 1)
	require.True(t, q.Enqueue("running", func(ctx context.Context) {
		close(started)
		select {
		case <-ctx.Done():
			interrupted <- struct{}{}
		case <-time.After(100 * time.Millisecond):
		}
	}))
	<-started

	require.True(t, q.Enqueue("pending", func(ctx context.Context) {}))
	q.Cancel("running")
	q.Cancel("pending")
	assert.Equal(t, 0, q.Pending())

	select {
	case <-interrupted:
		t.Fatal("Cancel must not abort an already dispatched job")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestQueue_CompletionFreesSlot(t *testing.T) {
	q := New(WithConcurrency(1), WithCapacity(5))
	defer q.Close()

	first := make(chan struct{})
	second := make(chan struct{})
	require.True(t, q.Enqueue("a", func(ctx context.Context) { close(first) }))

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first job did not run")
	}

	require.True(t, q.Enqueue("b", func(ctx context.Context) { close(second) }))
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("slot was not freed for the next job")
	}
}

func TestQueue_CloseRejectsNewWork(t *testing.T) {
	q := New()
	q.Close()
	assert.False(t, q.Enqueue("v", func(ctx context.Context) {}))
}

func TestQueue_LogsCarryJobIdentity(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&syncedWriter{mu: &mu, buf: &buf}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	q := New(WithConcurrency(1), WithCapacity(5), WithLogger(logger))
	defer q.Close()

	started := make(chan struct{})
	gate := make(chan struct{})
	require.True(t, q.Enqueue("blocker", func(ctx context.Context) {
		close(started)
		<-gate
	}))
	<-started

	// one pending job replaced by a newer one for the same value
	require.True(t, q.Enqueue("v", func(ctx context.Context) {}))
	require.True(t, q.Enqueue("v", func(ctx context.Context) {}))

	close(gate)
	q.Close()

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	assert.Contains(t, out, "dispatching job")
	assert.Contains(t, out, "removing queued job")
	assert.Contains(t, out, "job_id=")
	assert.Contains(t, out, "queued_for=")
}

type syncedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *syncedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
