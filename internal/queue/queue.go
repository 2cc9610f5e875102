// Package queue serializes validation jobs for a field. Dispatch is LIFO so
// the most recent user input wins over older queued attempts; at most one
// live job exists per subject value.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldgate/internal/platform/metrics"
)

type jobState string

const (
	statePending   jobState = "pending"
	stateRunning   jobState = "running"
	stateCancelled jobState = "cancelled"
	stateDone      jobState = "done"
)

// Task runs one validation job. Implementations must stop at ctx
// cancellation before applying any side effect.
type Task func(ctx context.Context)

type job struct {
	id          uuid.UUID
	value       string
	submittedAt time.Time
	task        Task
	state       jobState
	cancel      context.CancelFunc // set once dispatched
}

// Queue holds pending jobs up to a capacity cap and runs at most a fixed
// number concurrently. Enqueueing a value supersedes any queued or running
// job for the same value.
type Queue struct {
	mu          sync.Mutex
	pending     []*job          // stack; dispatch pops the top
	running     map[string]*job // by subject value
	active      int
	concurrency int
	capacity    int
	closed      bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		running:     make(map[string]*job),
		concurrency: 2,
		capacity:    5,
		baseCtx:     ctx,
		baseCancel:  cancel,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue supersedes any existing job for value, then appends a new one.
// Returns false when the queue is full or closed; a full queue drops the
// request silently rather than displacing older entries.
func (q *Queue) Enqueue(value string, task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.removePendingLocked(value)
	if run := q.running[value]; run != nil {
		run.cancel()
		q.metrics.IncQueueSuperseded()
		q.logger.Debug("superseding running job",
			"job_id", run.id,
			"running_for", q.now().Sub(run.submittedAt),
		)
	}

	if len(q.pending) >= q.capacity {
		q.metrics.IncQueueDropped()
		q.logger.Debug("validation queue full, dropping job", "value_len", len(value))
		return false
	}

	q.pending = append(q.pending, &job{
		id:          uuid.New(),
		value:       value,
		submittedAt: q.now(),
		task:        task,
		state:       statePending,
	})
	q.pumpLocked()
	return true
}

// Cancel removes pending jobs for value. Jobs already dispatched keep
// running; they self-cancel by checking the current input before applying
// results.
func (q *Queue) Cancel(value string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removePendingLocked(value)
}

// CancelAll clears every pending job.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.pending {
		j.state = stateCancelled
	}
	q.pending = q.pending[:0]
}

// Close cancels everything and waits for dispatched jobs to return.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, j := range q.pending {
		j.state = stateCancelled
	}
	q.pending = nil
	q.mu.Unlock()

	q.baseCancel()
	q.wg.Wait()
}

// Pending reports the number of queued (not yet dispatched) jobs.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) removePendingLocked(value string) {
	kept := q.pending[:0]
	for _, j := range q.pending {
		if j.value == value {
			j.state = stateCancelled
			q.metrics.IncQueueSuperseded()
			q.logger.Debug("removing queued job",
				"job_id", j.id,
				"queued_for", q.now().Sub(j.submittedAt),
			)
			continue
		}
		kept = append(kept, j)
	}
	q.pending = kept
}

// pumpLocked dispatches from the top of the stack while concurrency slots
// are free. Caller must hold q.mu.
func (q *Queue) pumpLocked() {
	for q.active < q.concurrency && len(q.pending) > 0 {
		j := q.pending[len(q.pending)-1]
		q.pending = q.pending[:len(q.pending)-1]

		ctx, cancel := context.WithCancel(q.baseCtx)
		j.state = stateRunning
		j.cancel = cancel
		q.running[j.value] = j
		q.active++
		q.logger.Debug("dispatching job",
			"job_id", j.id,
			"queued_for", q.now().Sub(j.submittedAt),
		)

		q.wg.Add(1)
		go q.run(ctx, j)
	}
}

func (q *Queue) run(ctx context.Context, j *job) {
	defer q.wg.Done()
	defer j.cancel()

	j.task(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	if j.state == stateRunning {
		j.state = stateDone
	}
	if q.running[j.value] == j {
		delete(q.running, j.value)
	}
	q.active--
	q.pumpLocked()
}
