package bridge

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errKilled = errors.New("killed")

// Pipe is an in-memory Context. The worker end is exposed through
// WorkerReader and WorkerWriter, which makes it useful for running a
// worker in the same process and for tests.
type Pipe struct {
	hostIn    *io.PipeWriter
	workerIn  *io.PipeReader
	workerOut *io.PipeWriter
	hostOut   *io.PipeReader

	done  chan struct{}
	once  sync.Once
	err   error
	kills atomic.Int32
}

func NewPipe() *Pipe {
	workerIn, hostIn := io.Pipe()
	hostOut, workerOut := io.Pipe()
	return &Pipe{
		hostIn:    hostIn,
		workerIn:  workerIn,
		workerOut: workerOut,
		hostOut:   hostOut,
		done:      make(chan struct{}),
	}
}

func (p *Pipe) Stdin() io.WriteCloser { return p.hostIn }
func (p *Pipe) Stdout() io.Reader     { return p.hostOut }
func (p *Pipe) Done() <-chan struct{} { return p.done }

func (p *Pipe) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// WorkerReader yields what the host writes to Stdin.
func (p *Pipe) WorkerReader() io.Reader { return p.workerIn }

// WorkerWriter feeds the host's Stdout.
func (p *Pipe) WorkerWriter() io.Writer { return p.workerOut }

// Exit stops the context with err as the reason. Later calls are ignored.
func (p *Pipe) Exit(err error) {
	p.once.Do(func() {
		p.err = err
		p.workerOut.Close()
		p.workerIn.CloseWithError(io.ErrClosedPipe)
		p.hostIn.CloseWithError(io.ErrClosedPipe)
		close(p.done)
	})
}

func (p *Pipe) Kill() error {
	p.kills.Add(1)
	p.Exit(errKilled)
	return nil
}

// Kills returns how many times Kill was called.
func (p *Pipe) Kills() int {
	return int(p.kills.Load())
}
