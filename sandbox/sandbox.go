// Package sandbox spawns the isolated contexts a supervisor runs jobs in.
//
// Two kinds are available. [Process] runs the worker as a child OS process
// and is the default. [WASM] runs a wasip1 build of the worker inside a
// wazero runtime, one module instance per context.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/caffeineduck/tib/bridge"
)

var (
	ErrWorkerExited = errors.New("worker exited")
	ErrClosed       = errors.New("spawner closed")
)

// Spawner creates isolated contexts.
type Spawner interface {
	Spawn(ctx context.Context) (bridge.Context, error)
}

// stderrTailSize is how much worker diagnostics are kept for crash reports.
const stderrTailSize = 4096

// stderrTail forwards worker diagnostics to a logger line by line and
// remembers the last stderrTailSize bytes.
type stderrTail struct {
	logger *slog.Logger

	mu   sync.Mutex
	line []byte
	tail []byte
}

func newStderrTail(logger *slog.Logger) *stderrTail {
	return &stderrTail{logger: logger}
}

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tail = append(s.tail, p...)
	if over := len(s.tail) - stderrTailSize; over > 0 {
		s.tail = append(s.tail[:0], s.tail[over:]...)
	}

	s.line = append(s.line, p...)
	for {
		i := bytes.IndexByte(s.line, '\n')
		if i < 0 {
			break
		}
		s.logger.Debug("worker", "stderr", string(s.line[:i]))
		s.line = s.line[i+1:]
	}
	return len(p), nil
}

// String returns the retained tail without surrounding whitespace.
func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(bytes.TrimSpace(s.tail))
}

// exitReason combines how the worker stopped with its last diagnostics.
func exitReason(err error, tail string) error {
	if err == nil {
		err = ErrWorkerExited
	}
	if tail == "" {
		return err
	}
	return &crashError{err: err, stderr: tail}
}

type crashError struct {
	err    error
	stderr string
}

func (e *crashError) Error() string {
	return e.err.Error() + "\nworker stderr:\n" + e.stderr
}

func (e *crashError) Unwrap() error {
	return e.err
}
