// Package retry drives the bounded attempt sequence for one remote check.
// Timeouts and inter-attempt delays are attempt-indexed, and the subject
// value is re-checked against the current input before every attempt so a
// superseded job aborts instead of wasting a call.
package retry

import (
	"context"
	"log/slog"
	"time"

	"fieldgate/internal/platform/metrics"
	"fieldgate/internal/verdict"
	"fieldgate/pkg/platform/sentinel"
)

// CheckFunc performs one attempt. The context carries the attempt's timeout.
type CheckFunc func(ctx context.Context, value string, attempt int) (verdict.Verdict, error)

// Controller owns the timeout and delay tables. The number of attempts is
// the length of the timeout table.
type Controller struct {
	timeouts []time.Duration // per attempt
	delays   []time.Duration // before attempt n+1
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithTables(timeouts, delays []time.Duration) Option {
	return func(c *Controller) {
		if len(timeouts) > 0 {
			c.timeouts = timeouts
		}
		c.delays = delays
	}
}

func New(opts ...Option) *Controller {
	c := &Controller{
		timeouts: []time.Duration{10 * time.Second, 7 * time.Second, 5 * time.Second},
		delays:   []time.Duration{3 * time.Second, 5 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attempts reports the total attempt budget.
func (c *Controller) Attempts() int {
	return len(c.timeouts)
}

// Execute runs check until it yields a verdict, a non-retryable error, or
// the attempt budget is spent. current returns the field's present
// normalized value; when it no longer equals value the sequence aborts with
// sentinel.ErrSuperseded and no further side effects.
func (c *Controller) Execute(ctx context.Context, value string, current func() string, check CheckFunc) (verdict.Verdict, error) {
	var lastErr error

	for attempt := 0; attempt < len(c.timeouts); attempt++ {
		if err := ctx.Err(); err != nil {
			return verdict.Verdict{}, err
		}
		if current() != value {
			return verdict.Verdict{}, sentinel.ErrSuperseded
		}

		if attempt > 0 {
			c.metrics.IncRetryAttempt()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeouts[attempt])
		v, err := check(attemptCtx, value, attempt)
		cancel()

		if err == nil {
			return v, nil
		}
		if !verdict.IsRetryable(err) {
			return verdict.Verdict{}, err
		}

		lastErr = err
		c.logger.Debug("remote check attempt failed",
			"attempt", attempt,
			"category", verdict.GetCategory(err),
		)

		if attempt == len(c.timeouts)-1 {
			break
		}
		if err := c.wait(ctx, c.delay(attempt)); err != nil {
			return verdict.Verdict{}, err
		}
	}

	return verdict.Verdict{}, verdict.NewCheckError(
		verdict.CategoryTransient, value, "retries exhausted", lastErr)
}

func (c *Controller) delay(attempt int) time.Duration {
	if attempt < len(c.delays) {
		return c.delays[attempt]
	}
	if len(c.delays) > 0 {
		return c.delays[len(c.delays)-1]
	}
	return time.Second
}

// wait sleeps unless the job is cancelled first.
func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
