package capture

import (
	"context"
	"time"
)

// Browser is the capability set consumed from the browser automation
// provider. Implementations adapt a concrete transport (MCP session, local
// headless browser) to these three calls.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// WaitForIdle blocks until the provider reports quiesced network
	// activity, or fails after timeout. Implementations that cannot wait
	// semantically return ErrIdleUnsupported.
	WaitForIdle(ctx context.Context, timeout time.Duration) error
	NetworkRecords(ctx context.Context) ([]NetworkRecord, error)
}

// Storage is the capability set consumed from the storage provider.
type Storage interface {
	CreateDirectory(ctx context.Context, path string) error
	WriteFile(ctx context.Context, path string, content []byte) error
}

// BrowserSession is an open browser provider handle owned by the
// orchestrator for the duration of one run.
type BrowserSession interface {
	Browser
	Close(ctx context.Context) error
}

// StorageSession is an open storage provider handle owned by the
// orchestrator for the duration of one run.
type StorageSession interface {
	Storage
	Close(ctx context.Context) error
}

// BrowserDialer opens browser provider sessions.
type BrowserDialer interface {
	DialBrowser(ctx context.Context) (BrowserSession, error)
}

// StorageDialer opens storage provider sessions.
type StorageDialer interface {
	DialStorage(ctx context.Context) (StorageSession, error)
}

// Clock abstracts time so tests can simulate waits and backoff without real
// delay. Sleep returns early with the context error when ctx is canceled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
