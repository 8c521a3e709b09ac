package language

import (
	"strings"
	"sync"
)

// Recorder is an in-memory Writer for interpreter tests.
// It mirrors the transport's rule that nothing is recorded after a terminal call.
type Recorder struct {
	mu         sync.Mutex
	stdout     strings.Builder
	stderr     strings.Builder
	terminated bool
	failure    string
	failed     bool
	calls      int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) WriteBoth(out, err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated {
		return
	}
	r.calls++
	r.stdout.WriteString(out)
	r.stderr.WriteString(err)
}

func (r *Recorder) WriteOut(out string) { r.WriteBoth(out, "") }

func (r *Recorder) WriteErr(err string) { r.WriteBoth("", err) }

func (r *Recorder) Terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = true
}

func (r *Recorder) TerminateWithError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated {
		return
	}
	r.terminated = true
	r.failed = true
	r.failure = msg
}

// Stdout returns everything written to stdout.
func (r *Recorder) Stdout() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stdout.String()
}

// Stderr returns everything written to stderr.
func (r *Recorder) Stderr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stderr.String()
}

// Terminated reports whether a terminal call was made.
func (r *Recorder) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// Failure returns the TerminateWithError message and whether one was recorded.
func (r *Recorder) Failure() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure, r.failed
}

// Writes returns the number of write calls recorded before termination.
func (r *Recorder) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
