package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// stdioTransport speaks JSON-RPC over a provider subprocess: one JSON
// message per line on stdin/stdout. stderr passes through for provider
// diagnostics.
type stdioTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan rpcResponse

	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

func dialStdioTransport(command string, args []string) (*stdioTransport, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start provider process: %w", err)
	}

	t := &stdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan rpcResponse),
		done:    make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t, nil
}

func (t *stdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	// Network dumps can be large; allow lines up to 32 MiB.
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
			// Server-initiated notifications are ignored.
			continue
		}
		t.deliver(resp)
	}
	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("provider process closed stdout")
	}
	t.fail(err)
}

func (t *stdioTransport) deliver(resp rpcResponse) {
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

func (t *stdioTransport) fail(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.readErr = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *stdioTransport) closedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return t.readErr
	}
	return errTransportClosed
}

// RoundTrip writes one request line and waits for the matching response.
func (t *stdioTransport) RoundTrip(ctx context.Context, req rpcRequest) (rpcResponse, error) {
	ch := make(chan rpcResponse, 1)
	t.mu.Lock()
	t.pending[*req.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, *req.ID)
		t.mu.Unlock()
	}()

	if err := t.write(req); err != nil {
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

// Notify writes a notification line; no response is expected.
func (t *stdioTransport) Notify(_ context.Context, req rpcRequest) error {
	return t.write(req)
}

func (t *stdioTransport) write(req rpcRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	payload = append(payload, '\n')
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

// Close ends the provider process: stdin is closed so well-behaved servers
// exit on their own, then the process is killed if it lingers.
func (t *stdioTransport) Close() error {
	t.fail(errTransportClosed)
	_ = t.stdin.Close()

	waited := make(chan error, 1)
	go func() { waited <- t.cmd.Wait() }()
	select {
	case <-waited:
		return nil
	case <-time.After(3 * time.Second):
		_ = t.cmd.Process.Kill()
		<-waited
		return nil
	}
}
