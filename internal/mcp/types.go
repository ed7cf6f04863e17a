// Package mcp implements a minimal Model Context Protocol client: JSON-RPC
// 2.0 over either an SSE endpoint or a subprocess stdio pipe, with just the
// session surface netcapture consumes (initialize, tools/list, tools/call).
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// protocolVersion is the MCP revision announced during initialize.
const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes that indicate the request itself was rejected as
// malformed, not that the provider hiccuped.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object returned by a provider.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsProtocolRejection reports whether err is a JSON-RPC level rejection of
// the request (unknown method, invalid params, malformed payload). Such
// failures will not succeed on retry.
func IsProtocolRejection(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.Code {
	case codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
		return true
	}
	return false
}

// Tool describes one callable tool advertised by a provider.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Content is one entry of a tool result's content list.
type Content struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// ToolResult is the provider's answer to a tools/call request.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Payload extracts the first JSON payload from the result content. Providers
// deliver structured output either as a json content entry or as JSON text;
// both are tolerated, mirroring the loose shapes seen in the wild.
func (r *ToolResult) Payload() (gjson.Result, bool) {
	if r == nil {
		return gjson.Result{}, false
	}
	for _, entry := range r.Content {
		switch entry.Type {
		case "json":
			if len(entry.JSON) > 0 {
				return gjson.ParseBytes(entry.JSON), true
			}
		case "text":
			text := strings.TrimSpace(entry.Text)
			if text != "" && gjson.Valid(text) {
				return gjson.Parse(text), true
			}
		}
	}
	return gjson.Result{}, false
}

// Text concatenates all text content entries, used for error messages.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, entry := range r.Content {
		if entry.Type == "text" && entry.Text != "" {
			parts = append(parts, entry.Text)
		}
	}
	return strings.Join(parts, "\n")
}
