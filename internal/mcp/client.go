package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// transport delivers JSON-RPC messages to one provider and routes responses
// back by request ID.
type transport interface {
	RoundTrip(ctx context.Context, req rpcRequest) (rpcResponse, error)
	Notify(ctx context.Context, req rpcRequest) error
	Close() error
}

// Session is an initialized MCP client connection to one tool provider.
type Session struct {
	transport transport
	logger    *zap.Logger
	nextID    atomic.Int64

	mu    sync.Mutex
	tools map[string]Tool
}

// DialSSE connects to a provider over SSE (HTTP stream + POST endpoint) and
// performs the initialize handshake.
func DialSSE(ctx context.Context, url string, logger *zap.Logger) (*Session, error) {
	t, err := dialSSETransport(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect sse %s: %w", url, err)
	}
	return newSession(ctx, t, logger)
}

// DialStdio spawns the provider subprocess, wires its stdio pipes, and
// performs the initialize handshake.
func DialStdio(ctx context.Context, command string, args []string, logger *zap.Logger) (*Session, error) {
	t, err := dialStdioTransport(command, args)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", command, err)
	}
	return newSession(ctx, t, logger)
}

func newSession(ctx context.Context, t transport, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{transport: t, logger: logger}
	if err := s.initialize(ctx); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("initialize session: %w", err)
	}
	return s, nil
}

func (s *Session) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "netcapture",
			"version": "0.1.0",
		},
	}
	if _, err := s.call(ctx, "initialize", params); err != nil {
		return err
	}
	return s.notify(ctx, "notifications/initialized", nil)
}

func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	resp, err := s.transport.RoundTrip(ctx, rpcRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, resp.Error)
	}
	return resp.Result, nil
}

func (s *Session) notify(ctx context.Context, method string, params any) error {
	return s.transport.Notify(ctx, rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

// ListTools returns the provider's advertised tools.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := s.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return payload.Tools, nil
}

// HasTool reports whether the provider advertises name. The tool list is
// fetched once per session; lookup failures degrade to false so callers can
// fall back instead of aborting.
func (s *Session) HasTool(ctx context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tools == nil {
		tools, err := s.ListTools(ctx)
		if err != nil {
			s.logger.Warn("Failed to list provider tools", zap.Error(err))
			return false
		}
		s.tools = make(map[string]Tool, len(tools))
		for _, tool := range tools {
			s.tools[tool.Name] = tool
		}
	}
	_, ok := s.tools[name]
	return ok
}

// CallTool invokes one named tool with arguments and decodes its result.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := s.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	result := &ToolResult{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", name, err)
		}
	}
	return result, nil
}

// Close releases the underlying transport.
func (s *Session) Close() error {
	return s.transport.Close()
}
