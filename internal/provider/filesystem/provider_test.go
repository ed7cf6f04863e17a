package filesystem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/croque-scale/netcapture/internal/capture"
	"github.com/croque-scale/netcapture/internal/mcp"
)

type fakeSession struct {
	tools   map[string]bool
	results map[string]*mcp.ToolResult
	errs    map[string]error
	calls   []toolCall
	closed  bool
}

type toolCall struct {
	name string
	args map[string]any
}

func newFakeSession(tools ...string) *fakeSession {
	s := &fakeSession{
		tools:   make(map[string]bool),
		results: make(map[string]*mcp.ToolResult),
		errs:    make(map[string]error),
	}
	for _, name := range tools {
		s.tools[name] = true
	}
	return s
}

func (s *fakeSession) HasTool(_ context.Context, name string) bool { return s.tools[name] }

func (s *fakeSession) CallTool(_ context.Context, name string, args map[string]any) (*mcp.ToolResult, error) {
	s.calls = append(s.calls, toolCall{name: name, args: args})
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	if result := s.results[name]; result != nil {
		return result, nil
	}
	return &mcp.ToolResult{}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func TestWriteFilePassesPathAndContent(t *testing.T) {
	t.Parallel()

	fake := newFakeSession(toolWriteFile)
	session := &Session{session: fake, logger: zap.NewNop()}

	content := []byte(`{"request":{"url":"https://a"}}` + "\n")
	require.NoError(t, session.WriteFile(context.Background(), "/captures/out.jsonl", content))
	require.Len(t, fake.calls, 1)
	require.Equal(t, toolWriteFile, fake.calls[0].name)
	require.Equal(t, "/captures/out.jsonl", fake.calls[0].args["path"])
	require.Equal(t, string(content), fake.calls[0].args["content"])
}

func TestWriteFileRejectionIsFatal(t *testing.T) {
	t.Parallel()

	fake := newFakeSession(toolWriteFile)
	fake.results[toolWriteFile] = &mcp.ToolResult{
		Content: []mcp.Content{{Type: "text", Text: "Access denied: path outside allowed directories"}},
		IsError: true,
	}
	session := &Session{session: fake, logger: zap.NewNop()}

	err := session.WriteFile(context.Background(), "/etc/passwd", []byte("x"))
	require.Error(t, err)
	require.True(t, capture.IsFatal(err))
	require.Contains(t, err.Error(), "outside allowed directories")
}

func TestWriteFileTransportFailureStaysRetryable(t *testing.T) {
	t.Parallel()

	fake := newFakeSession(toolWriteFile)
	fake.errs[toolWriteFile] = errors.New("provider process closed stdout")
	session := &Session{session: fake, logger: zap.NewNop()}

	err := session.WriteFile(context.Background(), "/captures/out.jsonl", []byte("x"))
	require.Error(t, err)
	require.False(t, capture.IsFatal(err))
}

func TestCreateDirectorySkipsWhenToolMissing(t *testing.T) {
	t.Parallel()

	fake := newFakeSession(toolWriteFile)
	session := &Session{session: fake, logger: zap.NewNop()}

	require.NoError(t, session.CreateDirectory(context.Background(), "/captures"))
	require.Empty(t, fake.calls)
}

func TestCreateDirectoryPassesPath(t *testing.T) {
	t.Parallel()

	fake := newFakeSession(toolCreateDirectory)
	session := &Session{session: fake, logger: zap.NewNop()}

	require.NoError(t, session.CreateDirectory(context.Background(), "/captures"))
	require.Len(t, fake.calls, 1)
	require.Equal(t, toolCreateDirectory, fake.calls[0].name)
	require.Equal(t, "/captures", fake.calls[0].args["path"])
}

func TestCreateDirectoryProtocolRejectionIsFatal(t *testing.T) {
	t.Parallel()

	fake := newFakeSession(toolCreateDirectory)
	fake.errs[toolCreateDirectory] = &mcp.RPCError{Code: -32601, Message: "method not found"}
	session := &Session{session: fake, logger: zap.NewNop()}

	err := session.CreateDirectory(context.Background(), "/captures")
	require.True(t, capture.IsFatal(err))
}

func TestSessionClose(t *testing.T) {
	t.Parallel()

	fake := newFakeSession()
	session := &Session{session: fake, logger: zap.NewNop()}
	require.NoError(t, session.Close(context.Background()))
	require.True(t, fake.closed)
}
