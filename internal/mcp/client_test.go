package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTransport answers round trips from a canned method->result table and
// records every message sent.
type fakeTransport struct {
	mu       sync.Mutex
	results  map[string]json.RawMessage
	errs     map[string]*RPCError
	requests []rpcRequest
	notifies []rpcRequest
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		results: map[string]json.RawMessage{
			"initialize": json.RawMessage(`{"protocolVersion":"2024-11-05"}`),
		},
		errs: map[string]*RPCError{},
	}
}

func (t *fakeTransport) RoundTrip(_ context.Context, req rpcRequest) (rpcResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if rpcErr, ok := t.errs[req.Method]; ok {
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}, nil
	}
	return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: t.results[req.Method]}, nil
}

func (t *fakeTransport) Notify(_ context.Context, req rpcRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifies = append(t.notifies, req)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) methodCalls(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, req := range t.requests {
		if req.Method == method {
			count++
		}
	}
	return count
}

func TestSessionInitializeHandshake(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	require.Equal(t, 1, transport.methodCalls("initialize"))
	require.Len(t, transport.notifies, 1)
	require.Equal(t, "notifications/initialized", transport.notifies[0].Method)
}

func TestSessionInitializeFailureClosesTransport(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.errs["initialize"] = &RPCError{Code: codeInvalidRequest, Message: "unsupported protocol"}

	_, err := newSession(context.Background(), transport, zap.NewNop())
	require.Error(t, err)
	require.True(t, transport.closed)
}

func TestSessionListTools(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.results["tools/list"] = json.RawMessage(
		`{"tools":[{"name":"browser_navigate"},{"name":"browser_network_requests"}]}`)
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	require.Equal(t, "browser_navigate", tools[0].Name)
}

func TestSessionHasToolCachesList(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.results["tools/list"] = json.RawMessage(`{"tools":[{"name":"write_file"}]}`)
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	require.True(t, session.HasTool(context.Background(), "write_file"))
	require.False(t, session.HasTool(context.Background(), "create_directory"))
	require.Equal(t, 1, transport.methodCalls("tools/list"))
}

func TestSessionHasToolDegradesOnListFailure(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.errs["tools/list"] = &RPCError{Code: -32000, Message: "busy"}
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	require.False(t, session.HasTool(context.Background(), "write_file"))
}

func TestSessionCallTool(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.results["tools/call"] = json.RawMessage(
		`{"content":[{"type":"text","text":"[{\"url\":\"https://a\"}]"}]}`)
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	result, err := session.CallTool(context.Background(), "browser_network_requests", nil)
	require.NoError(t, err)
	require.False(t, result.IsError)

	payload, ok := result.Payload()
	require.True(t, ok)
	require.Equal(t, "https://a", payload.Get("0.url").String())

	last := transport.requests[len(transport.requests)-1]
	params, ok := last.Params.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "browser_network_requests", params["name"])
}

func TestSessionCallToolSurfacesRPCError(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	transport.errs["tools/call"] = &RPCError{Code: codeMethodNotFound, Message: "no such tool"}
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.CallTool(context.Background(), "bogus_tool", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.True(t, IsProtocolRejection(err))
}

func TestSessionRequestIDsIncrease(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	session, err := newSession(context.Background(), transport, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.CallTool(context.Background(), "a", nil)
	require.NoError(t, err)
	_, err = session.CallTool(context.Background(), "b", nil)
	require.NoError(t, err)

	var prev int64
	for _, req := range transport.requests {
		require.NotNil(t, req.ID)
		require.Greater(t, *req.ID, prev)
		prev = *req.ID
	}
}
