package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/tib/worker"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve jobs on stdin/stdout (started by tib itself)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if os.Getenv("TIB_WORKER_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return worker.Serve(cmd.Context(), os.Stdin, os.Stdout, worker.WithLogger(logger))
}
