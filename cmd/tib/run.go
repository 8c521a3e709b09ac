package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a program",
	Long: `Run a program in an isolated worker.

The program can be provided via:
  - File argument: tib run hello.bf
  - Inline flag: tib run -l Deadfish -c 'iisiiiisiiiiiiiioiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiiio'
  - Stdin: echo '+[.+]' | tib run -l brainfuck

Stdout is streamed while the program runs. Stderr, the elapsed time and how
the run ended are printed afterwards. Ctrl-C aborts the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("lang", "l", "", "Language (see 'tib langs')")
	cmd.Flags().StringP("code", "c", "", "Program to run")
	cmd.Flags().String("stdin", "", "Input for the program")
	cmd.Flags().String("stdin-file", "", "Read the program's input from a file")
	cmd.Flags().String("args", "", "Arguments for the interpreter (-h shows its help)")
	cmd.Flags().Duration("timeout", 30*time.Second, "Abort the run after this long (0 disables)")
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	lang, _ := cmd.Flags().GetString("lang")
	stdin, _ := cmd.Flags().GetString("stdin")
	stdinFile, _ := cmd.Flags().GetString("stdin-file")
	langArgs, _ := cmd.Flags().GetString("args")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var source string
	var filename string

	switch {
	case code != "":
		source = code
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		source = string(data)
	case langArgs == "-h":
		// Help needs no program.
	default:
		// Check if stdin has data (not a terminal)
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			// No piped input, show help
			return cmd.Help()
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		source = string(data)
		if source == "" {
			return cmd.Help()
		}
	}

	if stdinFile != "" {
		data, err := os.ReadFile(stdinFile)
		if err != nil {
			return err
		}
		stdin = string(data)
	}

	name, err := getLanguage(registry(cmd), lang, filename)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)
	spawner, release, err := newSpawner(cmd, logger)
	if err != nil {
		return err
	}
	defer release()

	sup := supervisor.New(spawner, supervisorOpts(cmd, logger)...)
	defer sup.Close()

	if err := sup.Initialize(cmd.Context()); err != nil {
		return err
	}
	if err := sup.WaitReady(cmd.Context()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := job.Request{Language: name, Program: source, Stdin: stdin, Arguments: langArgs}
	st, err := runJob(ctx, sup, req, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	printResult(cmd.ErrOrStderr(), st)
	if st.Outcome != supervisor.Finished {
		return errJobFailed
	}
	return nil
}

// pollInterval is how often a running job's output is collected.
const pollInterval = 10 * time.Millisecond

// runJob runs req on sup, copying stdout to out as it arrives. When ctx is
// done the job is cancelled.
func runJob(ctx context.Context, sup *supervisor.Supervisor, req job.Request, out io.Writer) (supervisor.Status, error) {
	if err := sup.Run(req); err != nil {
		return supervisor.Status{}, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	printed := 0
	for {
		st := sup.Poll()
		if len(st.Stdout) > printed {
			io.WriteString(out, st.Stdout[printed:])
			printed = len(st.Stdout)
		}
		if st.State != supervisor.Running {
			return st, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			sup.Cancel()
		}
	}
}

func printResult(w io.Writer, st supervisor.Status) {
	fmt.Fprint(w, st.Stderr)
	fmt.Fprintf(w, "\n\n%s\n", st.Summary())
}
