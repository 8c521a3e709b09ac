package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/caffeineduck/tib/bridge"
)

// Process spawns the worker as a child process speaking the protocol on
// its stdin and stdout.
type Process struct {
	path   string
	args   []string
	env    []string
	logger *slog.Logger
}

// ProcessOption configures a Process spawner.
type ProcessOption func(*Process)

// WithCommand sets the worker command. The default re-executes the running
// binary with the "worker" argument.
func WithCommand(path string, args ...string) ProcessOption {
	return func(p *Process) {
		p.path = path
		p.args = args
	}
}

// WithEnv adds KEY=value pairs to the worker's environment.
func WithEnv(env ...string) ProcessOption {
	return func(p *Process) {
		p.env = append(p.env, env...)
	}
}

func WithProcessLogger(l *slog.Logger) ProcessOption {
	return func(p *Process) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewProcess(opts ...ProcessOption) (*Process, error) {
	p := &Process{
		args:   []string{"worker"},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker binary: %w", err)
		}
		p.path = exe
	}
	return p, nil
}

// Spawn starts a worker process.
func (p *Process) Spawn(ctx context.Context) (bridge.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(p.path, p.args...)
	cmd.Env = append(os.Environ(), p.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// A plain pipe instead of StdoutPipe, so Wait does not close the read
	// end while messages are still buffered in it.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	tail := newStderrTail(p.logger)
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	stdoutW.Close()

	pc := &processContext{
		cmd:    cmd,
		stdin:  stdin,
		stdout: &closeOnEOF{f: stdoutR},
		done:   make(chan struct{}),
	}
	p.logger.Debug("worker started", "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		pc.err = exitReason(err, tail.String())
		close(pc.done)
		p.logger.Debug("worker stopped", "pid", cmd.Process.Pid, "reason", err)
	}()

	return pc, nil
}

type processContext struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

func (c *processContext) Stdin() io.WriteCloser { return c.stdin }
func (c *processContext) Stdout() io.Reader     { return c.stdout }
func (c *processContext) Done() <-chan struct{} { return c.done }

func (c *processContext) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *processContext) Kill() error {
	c.killOnce.Do(func() {
		err := c.cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.killErr = err
		}
	})
	return c.killErr
}

// closeOnEOF releases the pipe once the worker's output is exhausted.
type closeOnEOF struct {
	f *os.File
}

func (r *closeOnEOF) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err == io.EOF {
		r.f.Close()
	}
	return n, err
}
