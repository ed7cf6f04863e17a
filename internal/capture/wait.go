package capture

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Residual sleep bounds for the degraded idle-wait path.
const (
	minResidualSleep = 500 * time.Millisecond
	maxResidualSleep = 5 * time.Second
)

// WaitStrategy decides how long to wait after navigation before reading the
// provider's network state.
type WaitStrategy interface {
	Wait(ctx context.Context, browser Browser) error
}

// NewWaitStrategy builds the strategy for the requested mode. Unknown modes
// are a fatal configuration error.
func NewWaitStrategy(mode WaitMode, timeout time.Duration, clock Clock, logger *zap.Logger) (WaitStrategy, error) {
	switch mode {
	case WaitModeNetworkIdle:
		return &NetworkIdleWait{Timeout: timeout, clock: clock, logger: logger}, nil
	case WaitModeSleep:
		return &FixedSleepWait{Duration: timeout, clock: clock, logger: logger}, nil
	default:
		return nil, Fatalf("unknown wait mode %q", mode)
	}
}

// NetworkIdleWait asks the provider to wait for quiesced network activity.
// Pages that never settle (polling, websockets) make the semantic wait time
// out; that is degraded to a shorter fixed sleep instead of failing the run.
type NetworkIdleWait struct {
	Timeout time.Duration

	clock  Clock
	logger *zap.Logger
}

// Wait performs the semantic wait with the sleep fallback.
func (w *NetworkIdleWait) Wait(ctx context.Context, browser Browser) error {
	err := browser.WaitForIdle(ctx, w.Timeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	residual := ResidualSleep(w.Timeout)
	if errors.Is(err, ErrIdleUnsupported) {
		w.logger.Info("Semantic wait unavailable, sleeping instead",
			zap.Duration("sleep", residual))
	} else {
		w.logger.Warn("Idle wait did not settle, degrading to fixed sleep",
			zap.Duration("sleep", residual),
			zap.Error(err))
	}
	return w.clock.Sleep(ctx, residual)
}

// FixedSleepWait blocks unconditionally for the configured duration.
type FixedSleepWait struct {
	Duration time.Duration

	clock  Clock
	logger *zap.Logger
}

// Wait sleeps for the full configured duration.
func (w *FixedSleepWait) Wait(ctx context.Context, _ Browser) error {
	w.logger.Info("Waiting fixed duration before reading network state",
		zap.Duration("sleep", w.Duration))
	return w.clock.Sleep(ctx, w.Duration)
}

// ResidualSleep returns the fallback sleep applied when a semantic wait
// degrades: half the configured timeout, clamped so the run still makes
// forward progress without stalling.
func ResidualSleep(timeout time.Duration) time.Duration {
	residual := timeout / 2
	if residual < minResidualSleep {
		return minResidualSleep
	}
	if residual > maxResidualSleep {
		return maxResidualSleep
	}
	return residual
}
