// Package filesystem adapts a filesystem MCP server to the capture.Storage
// capability set. The server enforces its own directory allow-list; writes
// outside it come back as rejections, which are fatal to a run.
package filesystem

import (
	"context"

	"go.uber.org/zap"

	"github.com/croque-scale/netcapture/internal/capture"
	"github.com/croque-scale/netcapture/internal/mcp"
)

// Tool names consumed from the filesystem MCP server.
const (
	toolCreateDirectory = "create_directory"
	toolWriteFile       = "write_file"
)

type toolSession interface {
	HasTool(ctx context.Context, name string) bool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
	Close() error
}

// Dialer spawns filesystem MCP server subprocesses.
type Dialer struct {
	command string
	args    []string
	logger  *zap.Logger
}

// NewDialer creates a Dialer for the given provider command line.
func NewDialer(command string, args []string, logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{command: command, args: args, logger: logger}
}

// DialStorage spawns and initializes one MCP session.
func (d *Dialer) DialStorage(ctx context.Context) (capture.StorageSession, error) {
	session, err := mcp.DialStdio(ctx, d.command, d.args, d.logger)
	if err != nil {
		return nil, err
	}
	d.logger.Info("Connected to filesystem MCP", zap.String("command", d.command))
	return &Session{session: session, logger: d.logger}, nil
}

// Session implements capture.StorageSession over one MCP session.
type Session struct {
	session toolSession
	logger  *zap.Logger
}

// CreateDirectory asks the provider to create path, parents included.
// Callers treat failure as non-fatal; some servers create parents on write.
func (s *Session) CreateDirectory(ctx context.Context, path string) error {
	if !s.session.HasTool(ctx, toolCreateDirectory) {
		s.logger.Debug("Provider has no create_directory tool, skipping")
		return nil
	}
	result, err := s.session.CallTool(ctx, toolCreateDirectory, map[string]any{"path": path})
	return classify(toolCreateDirectory, result, err)
}

// WriteFile writes content to path as a single payload.
func (s *Session) WriteFile(ctx context.Context, path string, content []byte) error {
	result, err := s.session.CallTool(ctx, toolWriteFile, map[string]any{
		"path":    path,
		"content": string(content),
	})
	return classify(toolWriteFile, result, err)
}

// Close releases the MCP session and ends the provider process.
func (s *Session) Close(_ context.Context) error {
	return s.session.Close()
}

// classify maps tool call outcomes onto the retry taxonomy. Tool-level
// rejections (disallowed path, bad arguments) are fatal; transport failures
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
