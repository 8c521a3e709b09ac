// Package supervisor owns the lifecycle of an isolated context and the jobs
// run in it.
//
// A Supervisor moves between NotReady, Ready and Running. A context that
// crashed, overflowed or was cancelled is never reused: it is destroyed and
// a replacement is spawned and bootstrapped in the background. The next Run
// waits for that replacement before its clock starts.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caffeineduck/tib/bridge"
	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/protocol"
	"github.com/caffeineduck/tib/sandbox"
)

var (
	ErrNotReady = errors.New("supervisor not ready")
	ErrBusy     = errors.New("a job is already running")
	ErrClosed   = errors.New("supervisor closed")
)

// contextFuture resolves to a bootstrapped thread or the reason there is none.
type contextFuture struct {
	done   chan struct{}
	thread *bridge.Thread
	err    error
}

func readyFuture(th *bridge.Thread) *contextFuture {
	f := &contextFuture{done: make(chan struct{}), thread: th}
	close(f.done)
	return f
}

// discard terminates the future's thread once it is available.
func (f *contextFuture) discard() {
	go func() {
		<-f.done
		if f.thread != nil {
			f.thread.Terminate()
		}
	}()
}

type Supervisor struct {
	spawner sandbox.Spawner
	cfg     config

	mu      sync.Mutex
	state   State
	closed  bool
	next    *contextFuture
	initErr error
	ready   chan struct{}

	// gen identifies the current run. Results of older runs are ignored.
	gen     uint64
	active  *bridge.Thread
	stdout  *bridge.Buffer
	stderr  *bridge.Buffer
	outcome Outcome
	runErr  error
	started bool
	start   time.Time
	elapsed time.Duration
	idle    chan struct{}
}

func New(spawner sandbox.Spawner, opts ...Option) *Supervisor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	idle := make(chan struct{})
	close(idle)
	return &Supervisor{
		spawner: spawner,
		cfg:     cfg,
		stdout:  bridge.NewBuffer(cfg.limit),
		stderr:  bridge.NewBuffer(cfg.limit),
		idle:    idle,
		ready:   make(chan struct{}),
	}
}

// Initialize starts spawning and bootstrapping the first context and
// returns without waiting. Use WaitReady or Poll to observe readiness.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state != NotReady || s.next != nil {
		return nil
	}
	s.initErr = nil
	fut := s.prepare(ctx)
	s.next = fut

	go func() {
		<-fut.done
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.next != fut || s.state != NotReady {
			return
		}
		if fut.err != nil {
			s.initErr = fut.err
			s.next = nil
			s.cfg.logger.Error("initialize failed", "error", fut.err)
			return
		}
		s.state = Ready
		close(s.ready)
		s.cfg.logger.Debug("supervisor ready")
	}()
	return nil
}

// WaitReady blocks until the first context is bootstrapped.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	fut := s.next
	state := s.state
	initErr := s.initErr
	ready := s.ready
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case state != NotReady:
		return nil
	case fut == nil && initErr != nil:
		return initErr
	case fut == nil:
		return ErrNotReady
	}

	select {
	case <-ready:
	case <-fut.done:
		if fut.err != nil {
			return fut.err
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Run starts req. It is valid only in Ready and returns without waiting
// for the job; use Poll or Wait to follow it.
func (s *Supervisor) Run(req job.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.state == NotReady:
		return ErrNotReady
	case s.state == Running:
		return ErrBusy
	}

	fut := s.next
	if fut == nil {
		fut = s.prepare(context.Background())
	}
	s.next = nil

	s.gen++
	s.state = Running
	s.stdout.Reset()
	s.stderr.Reset()
	s.outcome = None
	s.runErr = nil
	s.started = false
	s.elapsed = 0
	s.idle = make(chan struct{})

	go s.execute(s.gen, fut, req)
	return nil
}

func (s *Supervisor) execute(gen uint64, fut *contextFuture, req job.Request) {
	th, ok := s.acquire(gen, fut)
	if !ok {
		return
	}
	s.cfg.logger.Debug("job started", "lang", req.Language)

	task, err := protocol.NewTask(protocol.TaskRunJob, req)
	if err == nil {
		_, err = th.SendRequest(context.Background(), task)
	}
	s.complete(gen, th, err)
}

// acquire waits for fut and makes its thread the active one, starting the
// clock. A reused context that died while idle is replaced first. It reports
// false when the run is over before it could start.
func (s *Supervisor) acquire(gen uint64, fut *contextFuture) (*bridge.Thread, bool) {
	for {
		<-fut.done

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			fut.discard()
			return nil, false
		}
		if fut.err == nil && fut.thread.Terminated() {
			s.mu.Unlock()
			s.cfg.logger.Info("idle context stopped, spawning a replacement")
			fut = s.prepare(context.Background())
			continue
		}

		s.start = s.cfg.clock()
		s.started = true
		if fut.err != nil {
			s.finishLocked(Crashed, fmt.Errorf("%w: %w", bridge.ErrContextCrashed, fut.err))
			s.next = s.prepare(context.Background())
			s.mu.Unlock()
			return nil, false
		}
		s.active = fut.thread
		s.mu.Unlock()
		return fut.thread, true
	}
}

func (s *Supervisor) complete(gen uint64, th *bridge.Thread, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	overflow := s.drainLocked(th)

	var jobErr *bridge.JobError
	reuse := false
	switch {
	case overflow:
		s.finishLocked(LimitExceeded, fmt.Errorf("%w: supervisor buffer full", bridge.ErrOutputLimit))
	case err == nil:
		s.finishLocked(Finished, nil)
		reuse = true
	case errors.Is(err, bridge.ErrOutputLimit):
		s.finishLocked(LimitExceeded, err)
	case errors.As(err, &jobErr):
		s.finishLocked(Crashed, err)
		reuse = true
	default:
		s.finishLocked(Crashed, err)
	}

	if reuse && !th.Terminated() && !s.closed {
		s.next = readyFuture(th)
		return
	}
	th.Terminate()
	if !s.closed {
		s.next = s.prepare(context.Background())
	}
}

// Poll drains output produced since the last call and reports the current
// state. It never blocks on the context.
func (s *Supervisor) Poll() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running && s.active != nil {
		if s.drainLocked(s.active) {
			th := s.active
			s.gen++
			s.finishLocked(LimitExceeded, fmt.Errorf("%w: supervisor buffer full", bridge.ErrOutputLimit))
			th.Terminate()
			s.next = s.prepare(context.Background())
		}
	}
	return s.statusLocked()
}

// Cancel stops the running job by destroying its context, then returns to
// Ready. Partial output is kept. Outside Running it does nothing.
func (s *Supervisor) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return nil
	}

	th := s.active
	s.gen++
	if th != nil {
		s.drainLocked(th)
	}
	if !s.started {
		s.start = s.cfg.clock()
		s.started = true
	}
	s.finishLocked(Aborted, nil)

	if th != nil {
		th.Terminate()
	}
	if s.next == nil {
		s.next = s.prepare(context.Background())
	}
	s.cfg.logger.Debug("job canceled")
	return nil
}

// Wait blocks until the current run, if any, completes.
func (s *Supervisor) Wait(ctx context.Context) (Status, error) {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return s.Poll(), nil
	case <-ctx.Done():
		return s.Poll(), ctx.Err()
	}
}

// Close destroys every context. The supervisor cannot be used afterwards.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.gen++

	if s.active != nil {
		s.active.Terminate()
		s.active = nil
	}
	if s.next != nil {
		s.next.discard()
		s.next = nil
	}
	switch s.state {
	case Running:
		close(s.idle)
	case NotReady:
		close(s.ready)
	}
	s.state = NotReady
	return nil
}

// prepare spawns and bootstraps a context in the background.
func (s *Supervisor) prepare(ctx context.Context) *contextFuture {
	fut := &contextFuture{done: make(chan struct{})}
	id := uuid.NewString()
	logger := s.cfg.logger.With("context", id)

	go func() {
		defer close(fut.done)

		cx, err := s.spawner.Spawn(ctx)
		if err != nil {
			fut.err = fmt.Errorf("spawn: %w", err)
			return
		}
		th := bridge.New(cx, bridge.WithLimit(s.cfg.limit), bridge.WithLogger(s.cfg.logger), bridge.WithID(id))

		bctx, cancel := context.WithTimeout(ctx, s.cfg.bootstrapTimeout)
		defer cancel()
		if err := th.Bootstrap(bctx, protocol.Bootstrap{Protocol: protocol.Version, Debug: s.cfg.debug, Limit: s.cfg.limit}); err != nil {
			th.Terminate()
			fut.err = err
			return
		}
		fut.thread = th
		logger.Debug("context ready")
	}()
	return fut
}

// drainLocked moves the thread's output into the supervisor buffers and
// reports whether either of them overflowed.
func (s *Supervisor) drainLocked(th *bridge.Thread) bool {
	out, errOut := th.Take()
	overOut := s.stdout.Append(out)
	overErr := s.stderr.Append(errOut)
	return overOut || overErr
}

func (s *Supervisor) finishLocked(outcome Outcome, err error) {
	s.outcome = outcome
	s.runErr = err
	s.elapsed = s.cfg.clock().Sub(s.start)
	s.state = Ready
	s.active = nil
	close(s.idle)

	attrs := []any{"outcome", outcome.String(), "elapsed", s.elapsed}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if outcome == Finished {
		s.cfg.logger.Debug("job done", attrs...)
	} else {
		s.cfg.logger.Info("job done", attrs...)
	}
}

func (s *Supervisor) statusLocked() Status {
	st := Status{
		State:   s.state,
		Stdout:  s.stdout.String(),
		Stderr:  s.stderr.String(),
		Outcome: s.outcome,
		Err:     s.runErr,
		Elapsed: s.elapsed,
	}
	if s.state == Running && s.started {
		st.Elapsed = s.cfg.clock().Sub(s.start)
	}
	return st
}
