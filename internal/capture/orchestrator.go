package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/croque-scale/netcapture/internal/metrics"
)

// Orchestrator drives one capture run end to end. It owns both provider
// sessions for the duration of the run and releases them exactly once on
// every exit path.
type Orchestrator struct {
	browser BrowserDialer
	storage StorageDialer
	retryer *Retryer
	clock   Clock
	ids     IDGenerator
	logger  *zap.Logger
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(
	browser BrowserDialer,
	storage StorageDialer,
	retryer *Retryer,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser: browser,
		storage: storage,
		retryer: retryer,
		clock:   clock,
		ids:     ids,
		logger:  logger,
	}
}

// Run executes navigate, wait, fetch, filter, serialize, persist for req.
// Tool calls run under the retry executor; a failed run produces no output
// file.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	started := o.clock.Now()
	result, err := o.run(ctx, req)
	if err != nil {
		metrics.RunCompleted("failed", o.clock.Now().Sub(started))
		return Result{}, err
	}
	metrics.RunCompleted("succeeded", o.clock.Now().Sub(started))
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Result, error) {
	runID := o.newRunID()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("url", req.URL))

	// Configuration errors surface before any session is opened.
	filter, err := NewRecordFilter(req)
	if err != nil {
		return Result{}, err
	}
	wait, err := NewWaitStrategy(req.WaitMode, req.WaitTimeout, o.clock, logger)
	if err != nil {
		return Result{}, err
	}

	browserSession, storageSession, err := o.acquireSessions(ctx)
	if err != nil {
		return Result{}, err
	}
	defer o.releaseSessions(browserSession, storageSession, logger)
	logger.Info("Provider sessions acquired")

	logger.Info("Navigating")
	err = o.retryer.Do(ctx, "navigate", func(ctx context.Context) error {
		return browserSession.Navigate(ctx, req.URL)
	})
	if err != nil {
		return Result{}, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	// Wait failures are degraded inside the strategy; only cancellation
	// propagates from here.
	if err := wait.Wait(ctx, browserSession); err != nil {
		return Result{}, fmt.Errorf("wait after navigation: %w", err)
	}

	logger.Info("Fetching network records")
	var records []NetworkRecord
	err = o.retryer.Do(ctx, "fetch", func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = browserSession.NetworkRecords(ctx)
		return fetchErr
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetch network records: %w", err)
	}
	metrics.RecordsCaptured(len(records))

	kept := filter.Apply(records)
	metrics.RecordsKept(len(kept))
	if len(kept) != len(records) {
		logger.Info("Filtered records",
			zap.Int("captured", len(records)),
			zap.Int("kept", len(kept)))
	}

	capturedAt := o.clock.Now()
	payload, err := EncodeJSONL(kept, capturedAt)
	if err != nil {
		return Result{}, fmt.Errorf("serialize records: %w", err)
	}
	outputPath, err := ExpandOutputPath(req.OutputPath, capturedAt)
	if err != nil {
		return Result{}, err
	}

	o.ensureDirectory(ctx, storageSession, outputPath, logger)

	err = o.retryer.Do(ctx, "persist", func(ctx context.Context) error {
		return storageSession.WriteFile(ctx, outputPath, payload)
	})
	if err != nil {
		return Result{}, fmt.Errorf("persist capture: %w", err)
	}

	logger.Info("Capture persisted",
		zap.Int("records", len(kept)),
		zap.String("path", outputPath))
	return Result{
		RunID:      runID,
		Records:    kept,
		OutputPath: outputPath,
		CapturedAt: capturedAt,
	}, nil
}

// acquireSessions opens both provider sessions; order is irrelevant but both
// must be held before the pipeline proceeds. If one dial fails the other
// session, if opened, is closed before returning.
func (o *Orchestrator) acquireSessions(ctx context.Context) (BrowserSession, StorageSession, error) {
	var (
		browserSession BrowserSession
		storageSession StorageSession
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		session, err := o.browser.DialBrowser(groupCtx)
		if err != nil {
			return fmt.Errorf("dial browser provider: %w", err)
		}
		browserSession = session
		return nil
	})
	group.Go(func() error {
		session, err := o.storage.DialStorage(groupCtx)
		if err != nil {
			return fmt.Errorf("dial storage provider: %w", err)
		}
		storageSession = session
		return nil
	})
	if err := group.Wait(); err != nil {
		o.releaseSessions(browserSession, storageSession, o.logger)
		return nil, nil, err
	}
	return browserSession, storageSession, nil
}

// releaseSessions closes whichever sessions are open. Close errors are
// logged, never propagated; release must not mask the run's own error.
func (o *Orchestrator) releaseSessions(browserSession BrowserSession, storageSession StorageSession, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if browserSession != nil {
		if err := browserSession.Close(closeCtx); err != nil {
			logger.Warn("Failed to close browser session", zap.Error(err))
		}
	}
	if storageSession != nil {
		if err := storageSession.Close(closeCtx); err != nil {
			logger.Warn("Failed to close storage session", zap.Error(err))
		}
	}
}

// ensureDirectory asks the storage provider to create the parent directory.
// Best-effort: some providers create parents on write, so failure is logged
// and the run continues to the write itself.
func (o *Orchestrator) ensureDirectory(ctx context.Context, storage StorageSession, outputPath string, logger *zap.Logger) {
	dir := filepath.Dir(outputPath)
	if dir == "" || dir == "." || dir == string(filepath.Separator) {
		return
	}
	if err := storage.CreateDirectory(ctx, dir); err != nil {
		logger.Warn("Create directory failed, continuing to write",
			zap.String("dir", dir),
			zap.Error(err))
	}
}

func (o *Orchestrator) newRunID() string {
	if o.ids == nil {
		return ""
	}
	id, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("Failed to generate run ID", zap.Error(err))
		return ""
	}
	return id
}
