package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// errTransportClosed reports a round trip attempted after Close.
var errTransportClosed = errors.New("sse transport closed")

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// sseTransport speaks the MCP SSE transport: the server pushes JSON-RPC
// responses over a long-lived event stream and accepts requests as POSTs to
// an endpoint URL announced in the first stream event.
type sseTransport struct {
	client   *http.Client
	endpoint string
	cancel   context.CancelFunc

	mu      sync.Mutex
	pending map[int64]chan rpcResponse

	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

func dialSSETransport(ctx context.Context, streamURL string) (*sseTransport, error) {
	base, err := url.Parse(streamURL)
	if err != nil {
		return nil, fmt.Errorf("parse sse url: %w", err)
	}

	// The stream outlives the dial context; it is torn down by Close.
	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse stream returned status %d", resp.StatusCode)
	}

	t := &sseTransport{
		client:  client,
		cancel:  cancel,
		pending: make(map[int64]chan rpcResponse),
		done:    make(chan struct{}),
	}

	reader := bufio.NewReader(resp.Body)
	endpoint, err := t.awaitEndpoint(ctx, reader, base)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}
	t.endpoint = endpoint

	go t.readLoop(reader, resp.Body)
	return t, nil
}

// awaitEndpoint blocks until the server announces the POST endpoint, bounded
// by the dial context.
func (t *sseTransport) awaitEndpoint(ctx context.Context, reader *bufio.Reader, base *url.URL) (string, error) {
	type endpointResult struct {
		endpoint string
		err      error
	}
	ch := make(chan endpointResult, 1)
	go func() {
		for {
			event, err := readEvent(reader)
			if err != nil {
				ch <- endpointResult{err: fmt.Errorf("read endpoint event: %w", err)}
				return
			}
			if event.name != "endpoint" {
				continue
			}
			resolved, err := base.Parse(strings.TrimSpace(event.data))
			if err != nil {
				ch <- endpointResult{err: fmt.Errorf("resolve endpoint %q: %w", event.data, err)}
				return
			}
			ch <- endpointResult{endpoint: resolved.String()}
			return
		}
	}()

	select {
	case result := <-ch:
		return result.endpoint, result.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for sse endpoint: %w", ctx.Err())
	}
}

func (t *sseTransport) readLoop(reader *bufio.Reader, body io.Closer) {
	defer body.Close()
	for {
		event, err := readEvent(reader)
		if err != nil {
			t.fail(fmt.Errorf("sse stream: %w", err))
			return
		}
		if event.name != "" && event.name != "message" {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(event.data), &resp); err != nil || resp.ID == nil {
			// Server notifications and unparseable frames are ignored.
			continue
		}
		t.deliver(resp)
	}
}

// readEvent parses one SSE event: optional "event:" line, one or more
// "data:" lines joined by newlines, terminated by a blank line.
func readEvent(reader *bufio.Reader) (sseEvent, error) {
	var event sseEvent
	var data []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event.name == "" && len(data) == 0 {
				continue
			}
			event.data = strings.Join(data, "\n")
			return event, nil
		case strings.HasPrefix(line, "event:"):
			event.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment/keepalive
		}
	}
}

func (t *sseTransport) deliver(resp rpcResponse) {
	t.mu.Lock()
	ch, ok := t.pending[*resp.ID]
	if ok {
		delete(t.pending, *resp.ID)
	}
	t.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (t *sseTransport) fail(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.readErr = err
		t.mu.Unlock()
		close(t.done)
		t.cancel()
	})
}

func (t *sseTransport) closedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return t.readErr
	}
	return errTransportClosed
}

// RoundTrip POSTs the request to the announced endpoint and waits for the
// matching response to arrive on the event stream.
func (t *sseTransport) RoundTrip(ctx context.Context, req rpcRequest) (rpcResponse, error) {
	ch := make(chan rpcResponse, 1)
	t.mu.Lock()
	t.pending[*req.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, *req.ID)
		t.mu.Unlock()
	}()

	if err := t.post(ctx, req); err != nil {
		return rpcResponse{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return rpcResponse{}, ctx.Err()
	case <-t.done:
		return rpcResponse{}, t.closedErr()
	}
}

// Notify POSTs a notification; no response is expected.
func (t *sseTransport) Notify(ctx context.Context, req rpcRequest) error {
	return t.post(ctx, req)
}

func (t *sseTransport) post(ctx context.Context, req rpcRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", req.Method, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post %s: status %d", req.Method, resp.StatusCode)
	}
	return nil
}

// Close tears down the stream; in-flight round trips fail promptly.
func (t *sseTransport) Close() error {
	t.fail(errTransportClosed)
	return nil
}
