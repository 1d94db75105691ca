// Package supervisor spawns and manages the detached vector-worker child
// process (cmd/vectorworker), speaking wireproto over its stdin/stdout,
// and isolates the parent from native crashes in the worker's vector
// index. Grounded on the teacher's internal/vectorstore/health.go
// state-notification shape (HealthMonitor, copy-before-fire callbacks),
// adapted from gRPC connectivity polling to child-process liveness.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/wireproto"
)

// State is the availability state machine for the vector backend.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDegraded
	StateDead
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ErrBackendUnavailable is returned by Call when the backend has been
// permanently disabled (State is Dead) or has never successfully started.
var ErrBackendUnavailable = errors.New("supervisor: vector backend unavailable")

const (
	startupDeadline = 60 * time.Second
	callDeadline    = 30 * time.Second
)

// worker wraps one live child process and its stdio pipes.
type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex // serializes request/response dispatch on this worker
}

// Supervisor manages the lifecycle of a single vector-worker child process.
type Supervisor struct {
	binaryPath string
	args       []string
	// Env, if non-nil, is appended to the spawned child's environment on
	// top of the current process's environment. Tests use this to point
	// the child at a re-exec'd helper process instead of a real binary.
	Env    []string
	logger *zap.Logger

	mu      sync.Mutex // guards w and state transitions
	w       *worker
	state   atomic.Int32
	nextID  atomic.Uint64
	skipped map[string]bool // collections the child reported as explicitly skipped

	stateCallbacksMu sync.RWMutex
	stateCallbacks   []func(State)
}

// New constructs a Supervisor that will spawn binaryPath with args when
// Start is called. It does not start the child yet.
func New(binaryPath string, args []string, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{
		binaryPath: binaryPath,
		args:       args,
		logger:     logger,
		skipped:    make(map[string]bool),
	}
	s.state.Store(int32(StateUninitialized))
	return s
}

// State returns the current availability state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// OnStateChange registers a callback invoked whenever the availability
// state transitions. Callbacks run asynchronously and never block dispatch.
func (s *Supervisor) OnStateChange(cb func(State)) {
	s.stateCallbacksMu.Lock()
	defer s.stateCallbacksMu.Unlock()
	s.stateCallbacks = append(s.stateCallbacks, cb)
}

func (s *Supervisor) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	s.logger.Info("supervisor state transition",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)

	s.stateCallbacksMu.RLock()
	callbacks := make([]func(State), len(s.stateCallbacks))
	copy(callbacks, s.stateCallbacks)
	s.stateCallbacksMu.RUnlock()

	for _, cb := range callbacks {
		go func(cb func(State)) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("state callback panic", zap.Any("panic", r))
				}
			}()
			cb(next)
		}(cb)
	}
}

// Start spawns the child process and waits for its ready marker, up to the
// 60s startup deadline. A startup failure (early exit, closed stream, or
// deadline exceeded) records the backend as unavailable but never returns
// an error the caller must treat as fatal: the core must run lexical-only.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.spawn()
	if err != nil {
		s.logger.Warn("vector worker spawn failed", zap.Error(err))
		s.setState(StateDead)
		return
	}

	readyCtx, cancel := context.WithTimeout(ctx, startupDeadline)
	defer cancel()

	if err := s.awaitReady(readyCtx, w); err != nil {
		s.logger.Warn("vector worker startup failed", zap.Error(err))
		_ = w.cmd.Process.Kill()
		s.setState(StateDead)
		return
	}

	s.w = w
	s.setState(StateReady)
}

func (s *Supervisor) spawn() (*worker, error) {
	cmd := exec.Command(s.binaryPath, s.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	cmd.Stderr = nil // child diagnostics flow to its own stderr, left as process default
	if s.Env != nil {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start: %w", err)
	}

	return &worker{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// awaitReady blocks until the child emits the __init__/ready marker, the
// context deadline expires, or the stream closes.
func (s *Supervisor) awaitReady(ctx context.Context, w *worker) error {
	type result struct {
		resp wireproto.Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		line, err := w.stdout.ReadBytes('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("startup stream closed: %w", err)}
			return
		}
		var resp wireproto.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			done <- result{err: fmt.Errorf("malformed startup response: %w", err)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("startup deadline exceeded: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		if r.resp.ID != wireproto.InitID {
			return fmt.Errorf("unexpected startup response id %q", r.resp.ID)
		}
		var result string
		if err := json.Unmarshal(r.resp.Result, &result); err != nil || result != wireproto.ReadyResult {
			return errors.New("startup response missing ready marker")
		}
		return nil
	}
}

// MarkCollectionSkipped records that the child explicitly skipped opening
// a collection's sub-index at startup (e.g. too large to open safely),
// moving the backend into Degraded rather than Ready.
func (s *Supervisor) MarkCollectionSkipped(collection string) {
	s.mu.Lock()
	s.skipped[collection] = true
	s.mu.Unlock()
	if s.State() == StateReady {
		s.setState(StateDegraded)
	}
}

// CollectionUsable reports whether collection was not explicitly skipped
// by the child at startup.
func (s *Supervisor) CollectionUsable(collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.skipped[collection]
}

// Call dispatches method/params to the child and returns its decoded
// result. Calls are serialized by the worker's mutex. A timeout or I/O
// failure is treated as a crash: the child is killed, restarted once, and
// the call retried once; a second failure disables the backend
// permanently until the process is restarted (Start is called again).
func (s *Supervisor) Call(ctx context.Context, method wireproto.Method, params interface{}) (json.RawMessage, error) {
	if s.State() == StateDead || s.State() == StateUninitialized {
		return nil, ErrBackendUnavailable
	}

	raw, err := s.dispatch(ctx, method, params)
	if err == nil {
		return raw, nil
	}

	s.logger.Warn("vector worker call failed, restarting", zap.Error(err), zap.String("method", string(method)))
	if restartErr := s.restart(ctx); restartErr != nil {
		s.logger.Warn("vector worker restart failed, disabling backend", zap.Error(restartErr))
		s.setState(StateDead)
		return nil, fmt.Errorf("supervisor: backend disabled after restart failure: %w", restartErr)
	}

	raw, retryErr := s.dispatch(ctx, method, params)
	if retryErr != nil {
		s.logger.Warn("vector worker call failed after restart, disabling backend", zap.Error(retryErr))
		s.setState(StateDead)
		return nil, fmt.Errorf("supervisor: backend disabled after retry failure: %w", retryErr)
	}
	return raw, nil
}

func (s *Supervisor) restart(ctx context.Context) error {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w != nil {
		_ = w.cmd.Process.Kill()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newWorker, err := s.spawn()
	if err != nil {
		return err
	}
	readyCtx, cancel := context.WithTimeout(ctx, startupDeadline)
	defer cancel()
	if err := s.awaitReady(readyCtx, newWorker); err != nil {
		_ = newWorker.cmd.Process.Kill()
		return err
	}
	s.w = newWorker
	return nil
}

func (s *Supervisor) dispatch(ctx context.Context, method wireproto.Method, params interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		return nil, ErrBackendUnavailable
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("supervisor: marshal params: %w", err)
	}

	id := strconv.FormatUint(s.nextID.Add(1), 10)
	req := wireproto.Request{ID: id, Method: method, Params: paramsJSON}
	reqLine, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("supervisor: marshal request: %w", err)
	}
	reqLine = append(reqLine, '\n')

	callCtx, cancel := context.WithTimeout(ctx, callDeadline)
	defer cancel()

	type result struct {
		resp wireproto.Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		if _, err := w.stdin.Write(reqLine); err != nil {
			done <- result{err: fmt.Errorf("write request: %w", err)}
			return
		}
		line, err := w.stdout.ReadBytes('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("read response: %w", err)}
			return
		}
		var resp wireproto.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			done <- result{err: fmt.Errorf("decode response: %w", err)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-callCtx.Done():
		return nil, fmt.Errorf("supervisor: call deadline exceeded: %w", callCtx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Error != "" {
			return nil, fmt.Errorf("supervisor: worker error: %s", r.resp.Error)
		}
		return r.resp.Result, nil
	}
}

// Stop terminates the child process, if running.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	w := s.w
	s.w = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.cmd.Process.Kill()
}
