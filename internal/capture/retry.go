package capture

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/croque-scale/netcapture/internal/metrics"
)

// RetryPolicy bounds the retry executor: attempt budget and jittered
// exponential backoff between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultRetryPolicy returns a policy with sane defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Factor:      2,
	}
}

// Retryer executes fallible operations under a RetryPolicy. Transient
// failures are retried with backoff; fatal failures and context cancellation
// abort immediately.
type Retryer struct {
	policy RetryPolicy
	clock  Clock
	logger *zap.Logger
}

// NewRetryer builds a Retryer, filling in defaults for zero policy fields.
func NewRetryer(policy RetryPolicy, clock Clock, logger *zap.Logger) *Retryer {
	defaults := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaults.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = defaults.MaxDelay
	}
	if policy.Factor <= 1 {
		policy.Factor = defaults.Factor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, clock: clock, logger: logger}
}

// Do runs op until it succeeds, fails fatally, or the attempt budget is
// spent. The stage name tags log lines, metrics, and the exhausted error.
func (r *Retryer) Do(ctx context.Context, stage string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt - 1)
			r.logger.Warn("Retrying stage after transient failure",
				zap.String("stage", stage),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			metrics.ToolRetry(stage)
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return &RetryExhaustedError{Stage: stage, Attempts: r.policy.MaxAttempts, Err: lastErr}
}

func retryable(err error) bool {
	if IsFatal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// backoff returns the wait before attempt n+1: half the capped exponential
// delay plus a random jitter of up to the other half, so consecutive delays
// never shrink below the previous ceiling.
func (r *Retryer) backoff(attempt int) time.Duration {
	delay := float64(r.policy.BaseDelay) * math.Pow(r.policy.Factor, float64(attempt))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay)/2 + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
