// Package bridge carries protocol messages across the isolation boundary.
//
// The host side is a [Thread]: it owns one isolated context, allows at most
// one request in flight, accumulates streamed output into bounded buffers
// and turns an unexpected stop of the context into an error instead of a
// hang. The worker side is a [Port].
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/caffeineduck/tib/protocol"
)

var (
	ErrAlreadyTerminated = errors.New("worker already terminated")
	ErrCanceled          = errors.New("last request canceled")
	ErrContextCrashed    = errors.New("context terminated unexpectedly")
	ErrOutputLimit       = errors.New("output limit exceeded")
	ErrBusy              = errors.New("request already in flight")
	ErrBootstrap         = errors.New("bootstrap failed")
)

// JobError is a failure reported by the worker in a terminal message.
type JobError struct {
	Message string
}

func (e *JobError) Error() string {
	return e.Message
}

// Context is a handle to an isolated execution context.
type Context interface {
	// Stdin carries requests to the worker.
	Stdin() io.WriteCloser
	// Stdout carries messages from the worker.
	Stdout() io.Reader
	// Done is closed once the context has stopped.
	Done() <-chan struct{}
	// Err describes why the context stopped. Only valid after Done.
	Err() error
	// Kill destroys the context. It must be safe to call more than once.
	Kill() error
}

type result struct {
	payload json.RawMessage
	err     error
}

// request is the pending request slot.
type request struct {
	done     chan result
	resolved bool
}

// Thread is the host side of one isolated context.
type Thread struct {
	cx     Context
	enc    *protocol.Encoder
	logger *slog.Logger

	mu         sync.Mutex
	pending    *request
	stdout     *Buffer
	stderr     *Buffer
	terminated bool

	stopped chan struct{}
}

// New starts reading messages from cx.
func New(cx Context, opts ...Option) *Thread {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if cfg.id != "" {
		logger = logger.With("context", cfg.id)
	}

	t := &Thread{
		cx:      cx,
		enc:     protocol.NewEncoder(cx.Stdin()),
		logger:  logger,
		stdout:  NewBuffer(cfg.limit),
		stderr:  NewBuffer(cfg.limit),
		stopped: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Bootstrap performs the handshake that must precede any job.
func (t *Thread) Bootstrap(ctx context.Context, b protocol.Bootstrap) error {
	payload, err := t.SendRequest(ctx, b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	var reply string
	if err := json.Unmarshal(payload, &reply); err != nil || reply != protocol.BootstrapComplete {
		return fmt.Errorf("%w: unexpected reply %s", ErrBootstrap, payload)
	}
	t.logger.Debug("bootstrap complete")
	return nil
}

// SendRequest transmits payload and blocks until its terminal message
// arrives, the output limit is hit, the context dies or ctx is done.
// Cancelling ctx terminates the thread.
func (t *Thread) SendRequest(ctx context.Context, payload any) (json.RawMessage, error) {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return nil, ErrAlreadyTerminated
	}
	if t.pending != nil {
		t.mu.Unlock()
		return nil, ErrBusy
	}
	req := &request{done: make(chan result, 1)}
	t.pending = req
	t.stdout.Reset()
	t.stderr.Reset()
	t.mu.Unlock()

	if err := t.enc.Encode(payload); err != nil {
		t.mu.Lock()
		if t.pending == req {
			t.pending = nil
		}
		t.resolveLocked(req, result{err: fmt.Errorf("%w: send: %v", ErrContextCrashed, err)})
		t.mu.Unlock()
	}

	select {
	case r := <-req.done:
		return r.payload, r.err
	case <-ctx.Done():
		t.Terminate()
		r := <-req.done
		if r.err == nil {
			return r.payload, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
}

// Terminate rejects the pending request, if any, and destroys the context.
// Calling it again is a no-op.
func (t *Thread) Terminate() {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		t.logger.Debug("terminate: nop; already terminated")
		return
	}
	t.terminated = true
	if t.pending != nil {
		t.resolveLocked(t.pending, result{err: ErrCanceled})
		t.pending = nil
	}
	t.mu.Unlock()

	t.cx.Stdin().Close()
	if err := t.cx.Kill(); err != nil {
		t.logger.Debug("kill context", "error", err)
	}
	t.logger.Debug("terminate complete")
}

// Terminated reports whether the thread was terminated or its context died.
func (t *Thread) Terminated() bool {
	select {
	case <-t.cx.Done():
		return true
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

// Take drains the output accumulated since the last call.
func (t *Thread) Take() (stdout, stderr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdout.Take(), t.stderr.Take()
}

// Stopped is closed once the context's message stream has ended.
func (t *Thread) Stopped() <-chan struct{} {
	return t.stopped
}

func (t *Thread) readLoop() {
	defer close(t.stopped)

	dec := protocol.NewDecoder(t.cx.Stdout())
	for {
		var msg protocol.Message
		err := dec.Decode(&msg)
		if errors.Is(err, protocol.ErrMalformed) {
			t.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		if err != nil {
			if err != io.EOF {
				t.readFailed(err)
			}
			break
		}
		t.handle(msg)
	}

	<-t.cx.Done()
	t.stoppedUnexpectedly(t.cx.Err())
}

func (t *Thread) handle(msg protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req := t.pending
	if req == nil {
		t.logger.Debug("dropping message with no pending request")
		return
	}

	if !msg.Continues {
		t.pending = nil
		if msg.IsOk {
			t.resolveLocked(req, result{payload: msg.Payload})
		} else {
			t.resolveLocked(req, result{err: &JobError{Message: msg.ErrorText()}})
		}
		return
	}

	if req.resolved {
		return
	}

	chunk, err := msg.Chunk()
	if err != nil {
		t.resolveLocked(req, result{err: err})
		return
	}
	if t.stdout.Append(chunk.Stdout) {
		t.resolveLocked(req, result{err: fmt.Errorf("%w: stdout limit exceeded", ErrOutputLimit)})
	}
	if t.stderr.Append(chunk.Stderr) {
		t.resolveLocked(req, result{err: fmt.Errorf("%w: stderr limit exceeded", ErrOutputLimit)})
	}
}

// readFailed gives up on a context whose message stream can no longer be
// read. The worker may still be alive and blocked writing, so it is killed.
func (t *Thread) readFailed(err error) {
	t.logger.Warn("read from context", "error", err)

	reason := fmt.Errorf("%w: read: %v", ErrContextCrashed, err)
	if errors.Is(err, bufio.ErrTooLong) {
		reason = fmt.Errorf("%w: message longer than %d bytes", ErrOutputLimit, protocol.MaxLineSize)
	}

	t.mu.Lock()
	if t.pending != nil {
		t.resolveLocked(t.pending, result{err: reason})
	}
	t.mu.Unlock()
	t.Terminate()
}

func (t *Thread) stoppedUnexpectedly(reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}
	t.terminated = true

	if reason == nil {
		reason = errors.New("worker exited")
	}
	t.logger.Warn("context stopped", "reason", reason)

	if t.pending != nil {
		t.resolveLocked(t.pending, result{err: fmt.Errorf("%w: %v", ErrContextCrashed, reason)})
		t.pending = nil
	}
}

// resolveLocked delivers r to req unless it already has a result.
func (t *Thread) resolveLocked(req *request, r result) {
	if req.resolved {
		return
	}
	req.resolved = true
	req.done <- r
}
