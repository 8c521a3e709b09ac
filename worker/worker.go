// Package worker is the code that runs inside an isolated context.
//
// It answers the bootstrap handshake and then turns every task it receives
// into a job run whose output is streamed back over a [bridge.Port].
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/caffeineduck/tib/bridge"
	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/protocol"
)

var (
	ErrUnknownTask      = errors.New("unknown task")
	ErrProtocolMismatch = errors.New("protocol version mismatch")
	ErrNoBootstrap      = errors.New("input ended before bootstrap")
)

// Dispatcher routes raw task messages to their handlers.
type Dispatcher struct {
	runner *job.Runner
	port   *bridge.Port
	limit  int
	logger *slog.Logger
}

func NewDispatcher(runner *job.Runner, port *bridge.Port, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{runner: runner, port: port, limit: protocol.OutLimit, logger: logger}
}

// Dispatch handles one message. A non-nil error is fatal for the context.
func (d *Dispatcher) Dispatch(raw []byte) error {
	var task protocol.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
	}

	switch task.Task {
	case protocol.TaskRunJob:
		var req job.Request
		if len(task.Data) > 0 {
			if err := json.Unmarshal(task.Data, &req); err != nil {
				return fmt.Errorf("%w: job request: %v", protocol.ErrMalformed, err)
			}
		}
		d.logger.Debug("running job", "lang", req.Language, "program_bytes", len(req.Program))
		d.runner.Run(req, newStreamWriter(d.port, d.limit, d.logger))
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTask, task.Task)
	}
}

// Serve runs the worker loop over r and w until r is exhausted.
// It returns nil on a clean end of input and an error for anything the host
// must treat as a crash.
func Serve(ctx context.Context, r io.Reader, w io.Writer, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dec := protocol.NewDecoder(r)
	port := bridge.NewPort(w)

	boot, err := handshake(dec, port)
	if err != nil {
		return err
	}

	registry := cfg.registry
	if registry == nil {
		registry = job.DefaultRegistry(boot.Debug)
	}
	d := NewDispatcher(job.NewRunner(registry), port, cfg.logger)
	if boot.Limit > 0 {
		d.limit = boot.Limit
	}
	cfg.logger.Debug("worker ready", "languages", registry.List())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := dec.Next()
		if err == io.EOF {
			cfg.logger.Debug("input closed, shutting down")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read task: %w", err)
		}
		if err := d.Dispatch(line); err != nil {
			return err
		}
	}
}

func handshake(dec *protocol.Decoder, port *bridge.Port) (protocol.Bootstrap, error) {
	var boot protocol.Bootstrap
	err := dec.Decode(&boot)
	if err == io.EOF {
		return boot, ErrNoBootstrap
	}
	if err != nil {
		return boot, fmt.Errorf("bootstrap: %w", err)
	}
	if boot.Protocol != protocol.Version {
		err := fmt.Errorf("%w: host %d, worker %d", ErrProtocolMismatch, boot.Protocol, protocol.Version)
		port.SendError(err.Error())
		return boot, err
	}
	if err := port.SendResponse(protocol.BootstrapComplete, false); err != nil {
		return boot, fmt.Errorf("bootstrap reply: %w", err)
	}
	return boot, nil
}
