package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock records sleeps instead of blocking and advances a virtual now.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) recordedSleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestRetryerSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	retryer := NewRetryer(RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Minute, Factor: 2}, clock, zap.NewNop())

	attempts := 0
	err := retryer.Do(context.Background(), "fetch", func(context.Context) error {
		attempts++
		if attempts <= 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, attempts)

	sleeps := clock.recordedSleeps()
	require.Len(t, sleeps, 3)
	for i := 1; i < len(sleeps); i++ {
		require.GreaterOrEqual(t, sleeps[i], sleeps[i-1],
			"backoff delays must be non-decreasing below the cap")
	}
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	retryer := NewRetryer(RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Factor: 2}, clock, zap.NewNop())

	cause := errors.New("dial tcp: connection refused")
	attempts := 0
	err := retryer.Do(context.Background(), "navigate", func(context.Context) error {
		attempts++
		return cause
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "navigate", exhausted.Stage)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, cause)
}

func TestRetryerFatalFailsImmediately(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	retryer := NewRetryer(DefaultRetryPolicy(), clock, zap.NewNop())

	attempts := 0
	err := retryer.Do(context.Background(), "persist", func(context.Context) error {
		attempts++
		return Fatalf("path outside allowed directories")
	})
	require.Error(t, err)
	require.True(t, IsFatal(err))
	require.Equal(t, 1, attempts)
	require.Empty(t, clock.recordedSleeps())
}

func TestRetryerDoesNotRetryContextCancellation(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	retryer := NewRetryer(DefaultRetryPolicy(), clock, zap.NewNop())

	attempts := 0
	err := retryer.Do(context.Background(), "fetch", func(context.Context) error {
		attempts++
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestRetryerBackoffRespectsCap(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	maxDelay := 200 * time.Millisecond
	retryer := NewRetryer(RetryPolicy{MaxAttempts: 6, BaseDelay: 50 * time.Millisecond, MaxDelay: maxDelay, Factor: 2}, clock, zap.NewNop())

	err := retryer.Do(context.Background(), "fetch", func(context.Context) error {
		return errors.New("transient")
	})
	require.Error(t, err)

	for _, sleep := range clock.recordedSleeps() {
		require.LessOrEqual(t, sleep, maxDelay)
		require.Greater(t, sleep, time.Duration(0))
	}
}

func TestFatalErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad pattern")
	err := Fatal(cause)
	require.True(t, IsFatal(err))
	require.ErrorIs(t, err, cause)
	require.False(t, IsFatal(cause))
	require.NoError(t, Fatal(nil))

	wrapped := &RetryExhaustedError{Stage: "fetch", Attempts: 2, Err: cause}
	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, wrapped.Error(), "fetch")
	require.Contains(t, wrapped.Error(), "2 attempts")
}
