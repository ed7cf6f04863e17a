// Package chromedp provides a built-in browser capability backed by headless
// Chrome, for runs that should not depend on an external automation server.
package chromedp

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/croque-scale/netcapture/internal/capture"
)

// quietWindow is how long the network must stay silent before the page
// counts as idle.
const quietWindow = 500 * time.Millisecond

// idlePollInterval paces the idle-wait check loop.
const idlePollInterval = 100 * time.Millisecond

// Config controls the local browser provider.
type Config struct {
	UserAgent  string
	NavTimeout time.Duration
}

// Dialer launches headless Chrome sessions.
type Dialer struct {
	cfg    Config
	logger *zap.Logger
}

// NewDialer creates a Dialer.
func NewDialer(cfg Config, logger *zap.Logger) *Dialer {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{cfg: cfg, logger: logger}
}

// DialBrowser starts a browser, opens one tab, and begins recording network
// events on it.
func (d *Dialer) DialBrowser(ctx context.Context) (capture.BrowserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	recorder := newNetworkRecorder()
	chromedp.ListenTarget(tabCtx, recorder.handleEvent)

	setupCtx, cancel := context.WithTimeout(tabCtx, d.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(setupCtx, d.setupAction()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}

	d.logger.Info("Headless browser started")
	return &Session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		recorder:    recorder,
		navTimeout:  d.cfg.NavTimeout,
	}, nil
}

func (d *Dialer) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if d.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(d.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Session implements capture.BrowserSession on one headless Chrome tab.
type Session struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	recorder    *networkRecorder
	navTimeout  time.Duration
}

// Navigate loads target in the tab. A URL that does not parse as http(s) is
// fatal; browser-level load failures stay retryable.
func (s *Session) Navigate(ctx context.Context, target string) error {
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return capture.Fatalf("invalid navigation URL %q", target)
	}
	navCtx, cancel := context.WithTimeout(s.tabCtx, s.navTimeout)
	defer cancel()
	stop := contextBridge(ctx, cancel)
	defer stop()
	if err := chromedp.Run(navCtx, chromedp.Navigate(target)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// WaitForIdle waits until no request has been in flight for quietWindow, or
// fails after timeout so the wait strategy can degrade to a sleep.
func (s *Session) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		if s.recorder.idleFor(quietWindow) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("network did not reach idle within %s", timeout)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NetworkRecords returns the exchanges observed so far, in request order.
func (s *Session) NetworkRecords(_ context.Context) ([]capture.NetworkRecord, error) {
	return s.recorder.snapshot(), nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close(_ context.Context) error {
	s.tabCancel()
	s.allocCancel()
	return nil
}

// contextBridge cancels the chromedp-derived context when the caller's
// context is done, since chromedp actions must run on the tab's context
// chain rather than the caller's.
func contextBridge(ctx context.Context, cancel context.CancelFunc) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
