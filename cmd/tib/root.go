package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/sandbox"
	"github.com/caffeineduck/tib/supervisor"
)

var rootCmd = &cobra.Command{
	Use:   "tib [file]",
	Short: "Run esoteric-language programs in an isolated worker",
	Long: `tib - Run brainfuck, Deadfish, /// and friends without trusting them.

Every program runs in a separate worker (a child process, or a WebAssembly
instance with --isolation wasm). Output is streamed back while the program
runs and capped at 128 KiB per stream. Runaway programs are stopped by
destroying their worker; a fresh one is ready for the next run.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRun, // Default to run command behavior
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errJobFailed makes the process exit non-zero after a run that did not finish.
var errJobFailed = errors.New("job did not finish")

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errJobFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("isolation", "process", "Isolation: process, wasm")
	rootCmd.PersistentFlags().String("wasm", "", "Worker module for --isolation wasm (default: $TIB_WORKER_WASM)")
	rootCmd.PersistentFlags().String("memory", "256mb", "Worker memory limit for wasm: 16mb, 64mb, 256mb")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().Bool("debug-langs", false, "Enable ExampleLang, the debugging language")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log protocol and worker diagnostics")

	addRunFlags(rootCmd)
}

func setupLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// newSpawner builds the spawner selected by --isolation. The returned
// function releases it.
func newSpawner(cmd *cobra.Command, logger *slog.Logger) (sandbox.Spawner, func(), error) {
	isolation, _ := cmd.Flags().GetString("isolation")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch isolation {
	case "process", "":
		opts := []sandbox.ProcessOption{sandbox.WithProcessLogger(logger)}
		if verbose {
			opts = append(opts, sandbox.WithEnv("TIB_WORKER_DEBUG=1"))
		}
		p, err := sandbox.NewProcess(opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil

	case "wasm":
		path, _ := cmd.Flags().GetString("wasm")
		if path == "" {
			path = os.Getenv("TIB_WORKER_WASM")
		}
		if path == "" {
			return nil, nil, fmt.Errorf("--isolation wasm needs --wasm or TIB_WORKER_WASM")
		}
		noCache, _ := cmd.Flags().GetBool("no-cache")
		memory, _ := cmd.Flags().GetString("memory")

		opts := []sandbox.WASMOption{sandbox.WithWASMLogger(logger)}
		if !noCache {
			opts = append(opts, sandbox.WithDiskCache())
		}
		if pages := parseMemoryLimit(memory); pages > 0 {
			opts = append(opts, sandbox.WithMemoryLimit(pages))
		}
		w, err := sandbox.LoadWASM(cmd.Context(), path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown isolation %q: use process or wasm", isolation)
	}
}

func supervisorOpts(cmd *cobra.Command, logger *slog.Logger) []supervisor.Option {
	debug, _ := cmd.Flags().GetBool("debug-langs")
	opts := []supervisor.Option{supervisor.WithLogger(logger)}
	if debug {
		opts = append(opts, supervisor.WithDebugLanguages())
	}
	return opts
}

func registry(cmd *cobra.Command) *job.Registry {
	debug, _ := cmd.Flags().GetBool("debug-langs")
	return job.DefaultRegistry(debug)
}

// getLanguage resolves the --lang flag, falling back to the file extension.
func getLanguage(reg *job.Registry, langFlag, filename string) (string, error) {
	lang := langFlag

	if lang == "" && filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".b", ".bf":
			lang = "brainfuck"
		case ".df":
			lang = "Deadfish"
		case ".slashes":
			lang = "///"
		}
	}

	if lang == "" {
		return "", fmt.Errorf("language required: use --lang (one of %s)", strings.Join(reg.List(), ", "))
	}

	// Accept any capitalisation on the command line.
	for _, name := range reg.List() {
		if strings.EqualFold(name, lang) {
			return name, nil
		}
	}
	return lang, nil
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "16mb":
		return sandbox.MemoryLimit16MB
	case "64mb":
		return sandbox.MemoryLimit64MB
	case "256mb":
		return sandbox.MemoryLimit256MB
	default:
		return 0 // use default
	}
}
