package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldgate/internal/verdict"
	"fieldgate/pkg/platform/sentinel"
)

func fastController() *Controller {
	return New(WithTables(
		[]time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond},
		[]time.Duration{time.Millisecond, time.Millisecond},
	))
}

func stable(value string) func() string {
	return func() string { return value }
}

func transientErr(value string) error {
	return verdict.NewCheckError(verdict.CategoryTransient, value, "timeout", nil)
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	c := fastController()

	v, err := c.Execute(context.Background(), "v", stable("v"),
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			return verdict.Verdict{Value: value, Outcome: verdict.OutcomeValid, Attempt: attempt}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, verdict.OutcomeValid, v.Outcome)
	assert.Equal(t, 0, v.Attempt)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	c := fastController()

	var calls atomic.Int32
	v, err := c.Execute(context.Background(), "v", stable("v"),
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			if calls.Add(1) < 3 {
				return verdict.Verdict{}, transientErr(value)
			}
			return verdict.Verdict{Value: value, Outcome: verdict.OutcomeValid, Attempt: attempt}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, v.Attempt)
}

func TestExecute_ExhaustionYieldsTransientError(t *testing.T) {
	c := fastController()

	var calls atomic.Int32
	_, err := c.Execute(context.Background(), "v", stable("v"),
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			calls.Add(1)
			return verdict.Verdict{}, transientErr(value)
		})

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "three total attempts")
	assert.Equal(t, verdict.CategoryTransient, verdict.GetCategory(err))
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	c := fastController()

	var calls atomic.Int32
	_, err := c.Execute(context.Background(), "v", stable("v"),
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			calls.Add(1)
			return verdict.Verdict{}, verdict.NewCheckError(verdict.CategoryRateLimited, value, "budget spent", nil)
		})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, verdict.CategoryRateLimited, verdict.GetCategory(err))
}

func TestExecute_AbortsWhenValueSuperseded(t *testing.T) {
	c := fastController()

	var calls atomic.Int32
	current := atomic.Value{}
	current.Store("v")

	_, err := c.Execute(context.Background(), "v",
		func() string { return current.Load().(string) },
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			calls.Add(1)
			current.Store("changed") // user kept typing mid-flight
			return verdict.Verdict{}, transientErr(value)
		})

	require.ErrorIs(t, err, sentinel.ErrSuperseded)
	assert.Equal(t, int32(1), calls.Load(), "no retry once the input moved on")
}

func TestExecute_CancellationStopsRetryDelay(t *testing.T) {
	c := New(WithTables(
		[]time.Duration{50 * time.Millisecond, 50 * time.Millisecond},
		[]time.Duration{time.Hour}, // a cancelled job must not wait this out
	))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Execute(ctx, "v", stable("v"),
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			return verdict.Verdict{}, transientErr(value)
		})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_AttemptTimeoutApplied(t *testing.T) {
	c := New(WithTables(
		[]time.Duration{30 * time.Millisecond},
		nil,
	))

	_, err := c.Execute(context.Background(), "v", stable("v"),
		func(ctx context.Context, value string, attempt int) (verdict.Verdict, error) {
			select {
			case <-ctx.Done():
				return verdict.Verdict{}, verdict.NewCheckError(verdict.CategoryTransient, value, "timeout", ctx.Err())
			case <-time.After(time.Second):
				return verdict.Verdict{}, errors.New("attempt outlived its timeout")
			}
		})

	require.Error(t, err)
	assert.Equal(t, verdict.CategoryTransient, verdict.GetCategory(err))
}
