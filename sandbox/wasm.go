package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/tib/bridge"
)

var errKilled = errors.New("killed")

// WASM runs a wasip1 build of the worker (see cmd/tib-worker) in wazero.
// The module is compiled once; every context is a fresh instance with its
// own memory.
type WASM struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// WASMOption configures a WASM spawner.
type WASMOption func(*wasmConfig)

type wasmConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // each page is 64KB, 0 keeps the wazero default
	logger           *slog.Logger
}

// WithDiskCache keeps compiled code across runs. Without a directory it
// uses XDG_CACHE_HOME/tib or ~/.cache/tib.
func WithDiskCache(dir ...string) WASMOption {
	return func(c *wasmConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps the memory of each worker instance, in 64KB pages.
func WithMemoryLimit(pages uint32) WASMOption {
	return func(c *wasmConfig) {
		c.memoryLimitPages = pages
	}
}

func WithWASMLogger(l *slog.Logger) WASMOption {
	return func(c *wasmConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Memory limit presets for WithMemoryLimit.
const (
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
)

// LoadWASM reads a worker module from path and compiles it.
func LoadWASM(ctx context.Context, path string, opts ...WASMOption) (*WASM, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker module: %w", err)
	}
	return NewWASM(ctx, bin, opts...)
}

// NewWASM compiles the worker module bin.
func NewWASM(ctx context.Context, bin []byte, opts ...WASMOption) (*WASM, error) {
	cfg := wasmConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		dir := cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	w := &WASM{runtime: rt, cache: cache, logger: cfg.logger}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		w.Close()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("compile worker: %w", err)
	}
	w.compiled = compiled
	return w, nil
}

// Spawn instantiates a new worker module.
func (w *WASM) Spawn(ctx context.Context) (bridge.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	tail := newStderrTail(w.logger)

	// The instance outlives the spawn request; only Kill stops it.
	mctx, cancel := context.WithCancel(context.Background())

	moduleConfig := wazero.NewModuleConfig().
		WithStdin(stdinR).
		WithStdout(stdoutW).
		WithStderr(tail).
		WithArgs("tib-worker").
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithName("")

	wc := &wasmContext{
		stdinR:  stdinR,
		stdinW:  stdinW,
		stdoutR: stdoutR,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		mod, err := w.runtime.InstantiateModule(mctx, w.compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		if exitErr, ok := err.(*sys.ExitError); ok && exitErr.ExitCode() == 0 {
			err = nil
		}
		stdoutW.Close()
		stdinR.Close()
		wc.err = exitReason(err, tail.String())
		cancel()
		close(wc.done)
		w.logger.Debug("worker module stopped", "reason", err)
	}()

	return wc, nil
}

// Close releases the runtime and the compilation cache.
func (w *WASM) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	ctx := context.Background()

	var errs []error
	if err := w.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if w.cache != nil {
		if err := w.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type wasmContext struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	cancel  context.CancelFunc

	done chan struct{}
	err  error
}

func (c *wasmContext) Stdin() io.WriteCloser { return c.stdinW }
func (c *wasmContext) Stdout() io.Reader     { return c.stdoutR }
func (c *wasmContext) Done() <-chan struct{} { return c.done }

func (c *wasmContext) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Kill stops the instance. Closing the pipes unblocks a worker waiting in
// a host read or write, which context cancellation alone cannot reach.
func (c *wasmContext) Kill() error {
	c.cancel()
	c.stdinR.CloseWithError(errKilled)
	c.stdoutR.CloseWithError(errKilled)
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "tib")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "tib")
	}
	return filepath.Join(os.TempDir(), "tib-cache")
}
