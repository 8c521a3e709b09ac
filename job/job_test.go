package job

import (
	"strings"
	"testing"

	"github.com/caffeineduck/tib/language"
	"github.com/caffeineduck/tib/language/debuglang"
)

// spyLanguage records whether its body ran.
type spyLanguage struct {
	ran    bool
	writes []string
	stop   bool
	fault  any
}

func (s *spyLanguage) Name() string     { return "spy" }
func (s *spyLanguage) Help() string     { return "spy help\n" }
func (s *spyLanguage) Homepage() string { return "https://example.com/spy" }

func (s *spyLanguage) Interpret(program, stdin, args string, w language.Writer) {
	s.ran = true
	for _, chunk := range s.writes {
		w.WriteOut(chunk)
	}
	if s.fault != nil {
		panic(s.fault)
	}
	if s.stop {
		w.Terminate()
	}
}

func newSpyRunner(spy *spyLanguage) *Runner {
	r := NewRegistry()
	r.Register(spy)
	return NewRunner(r)
}

func TestRunUnknownLanguage(t *testing.T) {
	spy := &spyLanguage{}
	rec := language.NewRecorder()

	newSpyRunner(spy).Run(Request{Language: "Whitespace", Program: "   "}, rec)

	msg, failed := rec.Failure()
	if !failed {
		t.Fatal("expected error terminal")
	}
	if !strings.Contains(msg, "Whitespace") {
		t.Errorf("failure %q should name the language", msg)
	}
	if rec.Stderr() != msg {
		t.Errorf("stderr = %q, want %q", rec.Stderr(), msg)
	}
	if spy.ran {
		t.Error("no interpreter should run for an unknown language")
	}
}

func TestRunHelpShortCircuits(t *testing.T) {
	spy := &spyLanguage{writes: []string{"side effect"}}
	rec := language.NewRecorder()

	newSpyRunner(spy).Run(Request{Language: "spy", Program: "anything", Arguments: "-h"}, rec)

	if spy.ran {
		t.Error("interpreter body ran for -h")
	}
	if rec.Stdout() != spy.Help() {
		t.Errorf("stdout = %q, want help text", rec.Stdout())
	}
	if _, failed := rec.Failure(); failed || !rec.Terminated() {
		t.Error("expected success terminal")
	}
}

func TestRunHelpForBuiltins(t *testing.T) {
	runner := NewRunner(DefaultRegistry(true))
	for _, lang := range runner.Registry().All() {
		t.Run(lang.Name(), func(t *testing.T) {
			rec := language.NewRecorder()
			// "talker" would never return if the body ran.
			runner.Run(Request{Language: lang.Name(), Program: "talker", Arguments: "-h"}, rec)
			if rec.Stdout() != lang.Help() {
				t.Errorf("stdout = %q", rec.Stdout())
			}
		})
	}
}

func TestRunImplicitTerminate(t *testing.T) {
	spy := &spyLanguage{writes: []string{"a", "b", "c"}}
	rec := language.NewRecorder()

	newSpyRunner(spy).Run(Request{Language: "spy"}, rec)

	if rec.Stdout() != "abc" {
		t.Errorf("stdout = %q", rec.Stdout())
	}
	if !rec.Terminated() {
		t.Error("runner must terminate on behalf of the interpreter")
	}
	if _, failed := rec.Failure(); failed {
		t.Error("implicit termination is a success")
	}
}

func TestRunExplicitTerminateIsNotDuplicated(t *testing.T) {
	spy := &spyLanguage{writes: []string{"x"}, stop: true}
	w := &countingWriter{}

	newSpyRunner(spy).Run(Request{Language: "spy"}, w)

	if w.terminals != 2 {
		t.Fatalf("runner should call Terminate after the interpreter, got %d calls", w.terminals)
	}
}

func TestRunRecoversFault(t *testing.T) {
	spy := &spyLanguage{writes: []string{"partial"}, fault: "boom"}
	rec := language.NewRecorder()

	newSpyRunner(spy).Run(Request{Language: "spy"}, rec)

	msg, failed := rec.Failure()
	if !failed {
		t.Fatal("expected error terminal")
	}
	if !strings.Contains(msg, "interpreter fault") || !strings.Contains(msg, "boom") {
		t.Errorf("failure = %q", msg)
	}
	if rec.Stdout() != "partial" {
		t.Errorf("partial output lost: %q", rec.Stdout())
	}
}

func TestRunDeadfish(t *testing.T) {
	rec := language.NewRecorder()
	NewRunner(nil).Run(Request{Language: "Deadfish", Program: "iiisodso"}, rec)
	if rec.Stdout() != "9\n64\n" {
		t.Errorf("stdout = %q", rec.Stdout())
	}
}

func TestDefaultRegistry(t *testing.T) {
	names := DefaultRegistry(false).List()
	want := []string{"///", "Deadfish", "S10K", "brainfuck"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", names, want)
	}

	if _, ok := DefaultRegistry(false).Get(debuglang.Name); ok {
		t.Error("debug language registered without debug")
	}
	if _, ok := DefaultRegistry(true).Get(debuglang.Name); !ok {
		t.Error("debug language missing")
	}
}

type countingWriter struct {
	terminals int
}

func (c *countingWriter) WriteBoth(out, err string)     {}
func (c *countingWriter) WriteOut(out string)           {}
func (c *countingWriter) WriteErr(err string)           {}
func (c *countingWriter) Terminate()                    { c.terminals++ }
func (c *countingWriter) TerminateWithError(msg string) { c.terminals++ }
