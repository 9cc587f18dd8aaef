package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"debrief/internal/logging"
)

// State is the lifecycle state of a ServiceManager.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	defaultReadyMethod  = "ping"
	defaultReadyTimeout = 5 * time.Second
	defaultStartGrace   = 100 * time.Millisecond
	maxMessageSize      = 64 * 1024 * 1024
	stopTimeout         = 2 * time.Second
)

// ServiceManager owns one long-running service process. Requests are
// correlated to responses by id, so overlapping calls are safe; the
// process is started lazily and is not restarted automatically after it
// exits (the next request starts a new one).
type ServiceManager struct {
	executable string
	args       []string
	env        []string

	readyMethod  string
	readyTimeout time.Duration
	readyCheck   bool
	grace        time.Duration

	nextID atomic.Int64

	startMu sync.Mutex // serializes Start, including the readiness check

	mu    sync.Mutex
	state State
	proc  *serviceProcess
}

// ServiceOption configures a ServiceManager.
type ServiceOption func(*ServiceManager)

// WithReadyMethod sets the method used to check readiness.
func WithReadyMethod(method string) ServiceOption {
	return func(m *ServiceManager) { m.readyMethod = method }
}

// WithReadyTimeout bounds the readiness check.
func WithReadyTimeout(d time.Duration) ServiceOption {
	return func(m *ServiceManager) { m.readyTimeout = d }
}

// WithoutReadyCheck replaces the readiness check with a fixed grace period, for
// services that do not answer any method until fully initialised.
func WithoutReadyCheck(grace time.Duration) ServiceOption {
	return func(m *ServiceManager) {
		m.readyCheck = false
		m.grace = grace
	}
}

// WithServiceEnv sets the environment of the service process.
func WithServiceEnv(env []string) ServiceOption {
	return func(m *ServiceManager) { m.env = env }
}

// NewServiceManager returns a stopped manager for executable.
func NewServiceManager(executable string, args []string, opts ...ServiceOption) *ServiceManager {
	m := &ServiceManager{
		executable:   executable,
		args:         args,
		readyMethod:  defaultReadyMethod,
		readyTimeout: defaultReadyTimeout,
		readyCheck:   true,
		grace:        defaultStartGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Executable returns the command the manager runs.
func (m *ServiceManager) Executable() string {
	return m.executable
}

// State returns the current lifecycle state.
func (m *ServiceManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// running returns the live process once it has passed readiness.
func (m *ServiceManager) running() *serviceProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return nil
	}
	return m.proc
}

// Start launches the service and waits until it is ready. It is a no-op
// when the service is already running.
func (m *ServiceManager) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.running() != nil {
		return nil
	}

	p, err := m.spawn()
	if err != nil {
		return err
	}

	if err := m.awaitReady(ctx, p); err != nil {
		m.stopProcess(p)
		return fmt.Errorf("service %s did not become ready: %w", m.executable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc != p {
		return fmt.Errorf("%w during startup: %s", ErrServiceExited, m.executable)
	}
	m.state = StateRunning
	logging.Service("Service %s running (pid %d)", m.executable, p.cmd.Process.Pid)
	return nil
}

func (m *ServiceManager) awaitReady(ctx context.Context, p *serviceProcess) error {
	if !m.readyCheck {
		select {
		case <-time.After(m.grace):
		case <-ctx.Done():
			return ctx.Err()
		case <-p.exited:
			return p.exitError()
		}
		return nil
	}

	_, err := m.send(ctx, p, m.readyMethod, nil, m.readyTimeout)
	if err == nil {
		return nil
	}
	// Any well-formed reply proves the service is reading requests.
	if ce, ok := AsClientError(err); ok && ce.Code == MethodNotFound {
		return nil
	}
	return err
}

func (m *ServiceManager) spawn() (*serviceProcess, error) {
	cmd := exec.Command(m.executable, m.args...)
	cmd.Env = m.env
	cmd.WaitDelay = stopTimeout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command %s: %w", m.executable, err)
	}

	p := &serviceProcess{
		name:    m.executable,
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan *Response),
		exited:  make(chan struct{}),
	}

	m.mu.Lock()
	m.proc = p
	m.state = StateStarting
	m.mu.Unlock()

	p.readers.Add(2)
	go p.readStdout(stdout)
	go p.readStderr(stderr)
	go m.wait(p)

	logging.ServiceDebug("Started %s (pid %d)", m.executable, cmd.Process.Pid)
	return p, nil
}

// wait reaps the process and clears the handle, so a crashed service is
// seen as stopped by the next Request.
func (m *ServiceManager) wait(p *serviceProcess) {
	p.readers.Wait()
	err := p.cmd.Wait()

	m.mu.Lock()
	if m.proc == p {
		m.proc = nil
		m.state = StateStopped
	}
	m.mu.Unlock()

	if err != nil {
		logging.Get(logging.CategoryService).Warn("Service %s exited: %v", p.name, err)
	} else {
		logging.Service("Service %s exited", p.name)
	}
	p.close(err)
}

// Request sends method to the service, starting it first if needed, and
// returns the raw result.
func (m *ServiceManager) Request(ctx context.Context, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	p := m.running()
	if p == nil {
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
		if p = m.running(); p == nil {
			return nil, fmt.Errorf("failed to start service %s", m.executable)
		}
	}
	return m.send(ctx, p, method, params, timeout)
}

func (m *ServiceManager) send(ctx context.Context, p *serviceProcess, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	req := Request{JSONRPC: Version, ID: m.nextID.Add(1), Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ch, err := p.register(req.ID)
	if err != nil {
		return nil, err
	}

	if err := p.write(append(data, '\n')); err != nil {
		p.forget(req.ID)
		// A closed stdin means the process is gone or going.
		return nil, fmt.Errorf("%w: failed to write to %s stdin: %v", ErrServiceExited, p.name, err)
	}
	logging.ServiceDebug("-> %s %s id=%d", p.name, method, req.ID)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, p.exitError()
		}
		if resp.Error != nil {
			return nil, newClientError(resp.Error)
		}
		return resp.Result, nil
	case <-deadline.C:
		p.forget(req.ID)
		logging.Get(logging.CategoryService).Warn("%s %s id=%d timed out after %v", p.name, method, req.ID, timeout)
		return nil, fmt.Errorf("%w after %v: %s", ErrTimeout, timeout, method)
	case <-ctx.Done():
		p.forget(req.ID)
		return nil, ctx.Err()
	}
}

// Stop kills the service process and waits for it to be reaped. It is safe
// to call when nothing is running.
func (m *ServiceManager) Stop() {
	m.mu.Lock()
	p := m.proc
	m.proc = nil
	m.state = StateStopped
	m.mu.Unlock()

	if p == nil {
		return
	}
	m.stopProcess(p)
	logging.Service("Service %s stopped", m.executable)
}

func (m *ServiceManager) stopProcess(p *serviceProcess) {
	m.mu.Lock()
	if m.proc == p {
		m.proc = nil
		m.state = StateStopped
	}
	m.mu.Unlock()

	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.exited:
	case <-time.After(stopTimeout):
		logging.Get(logging.CategoryService).Warn("Timeout waiting for %s to exit", p.name)
	}
}

// ServiceCall sends a request through m and decodes its result into T.
func ServiceCall[T any](ctx context.Context, m *ServiceManager, method string, params map[string]any, timeout time.Duration) (T, error) {
	var out T
	raw, err := m.Request(ctx, method, params, timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return out, nil
}

// serviceProcess is one spawned service and its in-flight requests.
type serviceProcess struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *Response
	closed  bool
	exitErr error

	readers sync.WaitGroup
	exited  chan struct{}
}

func (p *serviceProcess) register(id int64) (chan *Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, p.exitErrorLocked()
	}
	ch := make(chan *Response, 1)
	p.pending[id] = ch
	return ch, nil
}

func (p *serviceProcess) forget(id int64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *serviceProcess) write(line []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.stdin.Write(line)
	return err
}

// close fails every outstanding request and marks the process gone.
func (p *serviceProcess) close(exitErr error) {
	p.mu.Lock()
	p.closed = true
	p.exitErr = exitErr
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.mu.Unlock()
	close(p.exited)
}

func (p *serviceProcess) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErrorLocked()
}

func (p *serviceProcess) exitErrorLocked() error {
	if p.exitErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrServiceExited, p.name, p.exitErr)
	}
	return fmt.Errorf("%w: %s", ErrServiceExited, p.name)
}

// dispatch routes a complete response to the request waiting on its id.
func (p *serviceProcess) dispatch(raw []byte) {
	resp, err := decodeResponse(raw)
	if err != nil {
		logging.Get(logging.CategoryService).Warn("Dropping malformed message from %s: %v", p.name, err)
		return
	}
	if resp.ID == nil {
		logging.ServiceDebug("Dropping message without id from %s", p.name)
		return
	}

	p.mu.Lock()
	ch, ok := p.pending[*resp.ID]
	if ok {
		delete(p.pending, *resp.ID)
	}
	p.mu.Unlock()

	if !ok {
		logging.Get(logging.CategoryService).Warn("Received response for unknown id %d from %s", *resp.ID, p.name)
		return
	}
	ch <- resp
}

// readStdout accumulates lines until they form a complete JSON value, so
// both single-line and pretty-printed responses are accepted. Once a value
// has started, every line belongs to it until it is complete; between
// values, lines that cannot start a JSON object are logged and skipped.
func (p *serviceProcess) readStdout(r io.Reader) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	var buf bytes.Buffer
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if buf.Len() == 0 {
			if json.Valid(line) {
				p.dispatch(line)
				continue
			}
			if line[0] != '{' {
				logging.ServiceDebug("[%s stdout] %s", p.name, line)
				continue
			}
		}

		buf.Write(line)
		buf.WriteByte('\n')
		if json.Valid(buf.Bytes()) {
			p.dispatch(buf.Bytes())
			buf.Reset()
		} else if buf.Len() > maxMessageSize {
			logging.Get(logging.CategoryService).Warn("Discarding oversized output from %s", p.name)
			buf.Reset()
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		logging.ServiceDebug("Reading %s stdout stopped: %v", p.name, err)
	}
}

// readStderr forwards the service's stderr as structured debug entries.
func (p *serviceProcess) readStderr(r io.Reader) {
	defer p.readers.Done()
	log := logging.Get(logging.CategoryService).Zap().With(zap.String("service", p.name))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug("stderr", zap.String("line", scanner.Text()))
	}
}
