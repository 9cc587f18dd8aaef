package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"debrief/internal/logging"
)

// DefaultTimeout applies when a caller passes a zero timeout.
const DefaultTimeout = 30 * time.Second

// waitDelay bounds how long Wait keeps copying output after the process
// is gone, e.g. when a grandchild inherited the pipes.
const waitDelay = 2 * time.Second

// Client issues one-shot requests. It owns the request id counter, so ids
// are unique for the lifetime of the Client.
type Client struct {
	nextID atomic.Int64
	env    []string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEnv sets the environment of spawned processes. The default inherits
// the current process environment.
func WithEnv(env []string) ClientOption {
	return func(c *Client) { c.env = env }
}

// NewClient returns a Client whose first request id is 1.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest builds a request carrying the next id.
func (c *Client) NewRequest(method string, params map[string]any) Request {
	return Request{
		JSONRPC: Version,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
}

// SpawnAndRequest starts executable, sends one request on its stdin, closes
// stdin, and waits for the process to exit. The outcome is decided exactly
// once: the first of exit, timeout, or ctx cancellation wins, and a timeout
// or cancellation kills the process.
func (c *Client) SpawnAndRequest(ctx context.Context, executable string, args []string, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	req := c.NewRequest(method, params)
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	payload = append(payload, '\n')

	cmd := exec.Command(executable, args...)
	cmd.Env = c.env
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	timer := logging.StartTimer(logging.CategoryRPC, fmt.Sprintf("%s %s", executable, method))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", executable, err)
	}
	logging.RPCDebug("Spawned %s (pid %d) for %s id=%d", executable, cmd.Process.Pid, method, req.ID)

	// The write runs beside the wait so a child that never drains stdin
	// cannot hold the call past its deadline.
	go func() {
		if _, err := stdin.Write(payload); err != nil {
			logging.RPCDebug("Write to %s stdin failed: %v", executable, err)
		}
		stdin.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case waitErr := <-done:
		timer.Stop()
		return c.finish(executable, waitErr, stdout.Bytes(), stderr.String())

	case <-deadline.C:
		_ = cmd.Process.Kill()
		<-done
		logging.Get(logging.CategoryRPC).Warn("%s %s timed out after %v", executable, method, timeout)
		return nil, fmt.Errorf("%w after %v: %s", ErrTimeout, timeout, method)

	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	}
}

func (c *Client) finish(executable string, waitErr error, stdout []byte, stderr string) (json.RawMessage, error) {
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			logging.Get(logging.CategoryRPC).Warn("%s exited with code %d", executable, exitErr.ExitCode())
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: stderr}
		}
		return nil, fmt.Errorf("waiting for %s: %w", executable, waitErr)
	}

	resp, err := decodeResponse(bytes.TrimSpace(stdout))
	if err != nil {
		return nil, &ParseResponseError{Raw: string(stdout), Err: err}
	}
	if resp.Error != nil {
		return nil, newClientError(resp.Error)
	}
	return resp.Result, nil
}

var defaultClient = NewClient()

// SpawnAndRequest issues a one-shot request using the package's default
// Client.
func SpawnAndRequest(ctx context.Context, executable string, args []string, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	return defaultClient.SpawnAndRequest(ctx, executable, args, method, params, timeout)
}

// Call issues a one-shot request and decodes its result into T.
func Call[T any](ctx context.Context, c *Client, executable string, args []string, method string, params map[string]any, timeout time.Duration) (T, error) {
	var out T
	raw, err := c.SpawnAndRequest(ctx, executable, args, method, params, timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return out, nil
}
