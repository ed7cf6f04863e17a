// Package playwright adapts a Playwright MCP server to the capture.Browser
// capability set.
package playwright

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/croque-scale/netcapture/internal/capture"
	"github.com/croque-scale/netcapture/internal/mcp"
)

// Tool names consumed from the Playwright MCP server.
const (
	toolNavigate        = "browser_navigate"
	toolWaitFor         = "browser_wait_for"
	toolNetworkRequests = "browser_network_requests"
)

// toolSession is the slice of mcp.Session the adapter consumes; narrowed for
// testability.
type toolSession interface {
	HasTool(ctx context.Context, name string) bool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
	Close() error
}

// Dialer opens browser sessions against a Playwright MCP SSE endpoint.
type Dialer struct {
	url    string
	logger *zap.Logger
}

// NewDialer creates a Dialer for the given SSE URL.
func NewDialer(url string, logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{url: url, logger: logger}
}

// DialBrowser connects and initializes one MCP session.
func (d *Dialer) DialBrowser(ctx context.Context) (capture.BrowserSession, error) {
	session, err := mcp.DialSSE(ctx, d.url, d.logger)
	if err != nil {
		return nil, err
	}
	d.logger.Info("Connected to Playwright MCP", zap.String("url", d.url))
	return &Session{session: session, logger: d.logger}, nil
}

// Session implements capture.BrowserSession over one MCP session.
type Session struct {
	session toolSession
	logger  *zap.Logger
}

// Navigate points the browser at url.
func (s *Session) Navigate(ctx context.Context, url string) error {
	result, err := s.session.CallTool(ctx, toolNavigate, map[string]any{"url": url})
	return classify(toolNavigate, result, err)
}

// WaitForIdle asks the provider to wait for quiesced network activity.
// Servers without the wait tool report ErrIdleUnsupported so the wait
// strategy can fall back to a fixed sleep.
func (s *Session) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	if !s.session.HasTool(ctx, toolWaitFor) {
		return capture.ErrIdleUnsupported
	}
	result, err := s.session.CallTool(ctx, toolWaitFor, map[string]any{
		"state":   "networkidle",
		"timeout": timeout.Milliseconds(),
	})
	if err != nil {
		return classify(toolWaitFor, result, err)
	}
	if result.IsError {
		// A wait timeout is degraded by the caller, not fatal.
		return fmt.Errorf("%s: %s", toolWaitFor, result.Text())
	}
	return nil
}

// NetworkRecords fetches the provider's current request/response set.
func (s *Session) NetworkRecords(ctx context.Context) ([]capture.NetworkRecord, error) {
	result, err := s.session.CallTool(ctx, toolNetworkRequests, nil)
	if err := classify(toolNetworkRequests, result, err); err != nil {
		return nil, err
	}
	payload, ok := result.Payload()
	if !ok {
		return nil, nil
	}
	return decodeRecords(payload), nil
}

// Close releases the MCP session.
func (s *Session) Close(_ context.Context) error {
	return s.session.Close()
}

// classify maps tool call outcomes onto the retry taxonomy: protocol-level
// rejections and provider-reported tool errors are fatal, transport failures
// stay retryable.
func classify(tool string, result *mcp.ToolResult, err error) error {
	if err != nil {
		if mcp.IsProtocolRejection(err) {
			return capture.Fatal(err)
		}
		return err
	}
	if result != nil && result.IsError {
		return capture.Fatalf("%s rejected: %s", tool, result.Text())
	}
	return nil
}

// decodeRecords normalizes the loose payload shapes Playwright servers
// return: a bare array, an object with a requests array, or a single record.
func decodeRecords(payload gjson.Result) []capture.NetworkRecord {
	entries := payload
	if !payload.IsArray() {
		if requests := payload.Get("requests"); requests.IsArray() {
			entries = requests
		} else if payload.IsObject() {
			return []capture.NetworkRecord{decodeRecord(payload)}
		} else {
			return nil
		}
	}
	var records []capture.NetworkRecord
	entries.ForEach(func(_, entry gjson.Result) bool {
		records = append(records, decodeRecord(entry))
		return true
	})
	return records
}

func decodeRecord(entry gjson.Result) capture.NetworkRecord {
	record := capture.NetworkRecord{
		Request: capture.RequestInfo{
			URL:      firstString(entry, "request.url", "url"),
			Method:   firstString(entry, "request.method", "method"),
			Headers:  stringMap(entry.Get("request.headers")),
			PostData: firstString(entry, "request.postData", "postData"),
		},
	}
	status := entry.Get("response.status")
	if !status.Exists() {
		status = entry.Get("status")
	}
	if status.Exists() {
		record.Response = &capture.ResponseInfo{
			Status:  int(status.Int()),
			Headers: stringMap(entry.Get("response.headers")),
			Timing:  floatMap(entry.Get("response.timing")),
		}
	}
	if ts := entry.Get("timestamp"); ts.Exists() {
		if parsed, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			record.Observed = parsed
		}
	}
	return record
}

func firstString(entry gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := entry.Get(path); value.Exists() {
			return value.String()
		}
	}
	return ""
}

func stringMap(value gjson.Result) map[string]string {
	if !value.IsObject() {
		return nil
	}
	out := make(map[string]string)
	value.ForEach(func(key, entry gjson.Result) bool {
		out[key.String()] = entry.String()
		return true
	})
	return out
}

func floatMap(value gjson.Result) map[string]float64 {
	if !value.IsObject() {
		return nil
	}
	out := make(map[string]float64)
	value.ForEach(func(key, entry gjson.Result) bool {
		out[key.String()] = entry.Float()
		return true
	})
	return out
}
