package worker

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/caffeineduck/tib/bridge"
	"github.com/caffeineduck/tib/protocol"
)

// streamWriter forwards every interpreter write to the host as its own
// message. After the first terminal call it drops everything.
type streamWriter struct {
	port   *bridge.Port
	limit  int
	logger *slog.Logger

	mu   sync.Mutex
	done bool
}

func newStreamWriter(port *bridge.Port, limit int, logger *slog.Logger) *streamWriter {
	if limit <= 0 {
		limit = protocol.OutLimit
	}
	return &streamWriter{port: port, limit: limit, logger: logger}
}

func (w *streamWriter) WriteBoth(out, err string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.check(w.port.SendChunk(clamp(out, w.limit), clamp(err, w.limit), true))
}

func (w *streamWriter) WriteOut(out string) { w.WriteBoth(out, "") }

func (w *streamWriter) WriteErr(err string) { w.WriteBoth("", err) }

func (w *streamWriter) Terminate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.check(w.port.SendResponse(protocol.Chunk{}, false))
}

func (w *streamWriter) TerminateWithError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.check(w.port.SendError(msg))
}

func (w *streamWriter) check(err error) {
	if err != nil {
		w.logger.Debug("send to host", "error", err)
	}
}

// clamp cuts s just past limit, on a rune boundary. The host fails the job
// as soon as a stream passes its limit, so the rest would only be dropped.
func clamp(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := limit + 1
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return s[:n]
}
