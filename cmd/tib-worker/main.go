// Command tib-worker is the worker alone, small enough to build for
// GOOS=wasip1 and run under the WASM sandbox:
//
//	GOOS=wasip1 GOARCH=wasm go build -o tib-worker.wasm ./cmd/tib-worker
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/caffeineduck/tib/worker"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("TIB_WORKER_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := worker.Serve(context.Background(), os.Stdin, os.Stdout, worker.WithLogger(logger)); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
