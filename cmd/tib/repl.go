package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/tib/job"
	"github.com/caffeineduck/tib/supervisor"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive loop: every line is a program",
	Long: `Start an interactive session. Each line is run as a complete program
in the current language, on a worker that stays up between lines.

Meta commands:
  :lang NAME     switch language
  :args ARGS     set interpreter arguments (empty to clear)
  :stdin TEXT    set program input (empty to clear)
  :langs         list languages

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)
  - Ctrl+C aborts a running program

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringP("lang", "l", "brainfuck", "Initial language")
	replCmd.Flags().String("history", "", "History file path (default: ~/.tib_history)")
	rootCmd.AddCommand(replCmd)
}

// replSession holds the inputs that persist between lines.
type replSession struct {
	registry *job.Registry
	lang     string
	args     string
	stdin    string
}

// meta applies a ":" command and returns what to print.
func (s *replSession) meta(line string) (string, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "lang":
		resolved, err := getLanguage(s.registry, arg, "")
		if err != nil {
			return "", err
		}
		if _, ok := s.registry.Get(resolved); !ok {
			return "", fmt.Errorf("unknown language %q", arg)
		}
		s.lang = resolved
		return "language: " + s.lang, nil
	case "args":
		s.args = arg
		return fmt.Sprintf("args: %q", s.args), nil
	case "stdin":
		s.stdin = arg
		return fmt.Sprintf("stdin: %q", s.stdin), nil
	case "langs":
		return strings.Join(s.registry.List(), "\n"), nil
	default:
		return "", fmt.Errorf("unknown command :%s", name)
	}
}

func (s *replSession) request(program string) job.Request {
	return job.Request{Language: s.lang, Program: program, Stdin: s.stdin, Arguments: s.args}
}

func runRepl(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("lang")
	historyFile, _ := cmd.Flags().GetString("history")

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".tib_history")
	}

	reg := registry(cmd)
	session := &replSession{registry: reg}
	if _, err := session.meta(":lang " + lang); err != nil {
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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "tib REPL, language %s (type 'exit' to quit, Ctrl+D to exit)\n", session.lang)

	if err := sup.WaitReady(cmd.Context()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if strings.HasPrefix(line, ":") {
			msg, err := session.meta(line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println(msg)
			continue
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		st, err := runJob(ctx, sup, session.request(line), os.Stdout)
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if st.Stdout != "" && !strings.HasSuffix(st.Stdout, "\n") {
			fmt.Println()
		}
		printResult(os.Stderr, st)
	}
	return nil
}
