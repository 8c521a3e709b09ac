package debuglang

import (
	"strings"
	"testing"

	"github.com/caffeineduck/tib/language"
)

func TestLang(t *testing.T) {
	rec := language.NewRecorder()
	New().Interpret("lang", "", "", rec)

	if got := rec.Stdout(); got != strings.Repeat("S", 40) {
		t.Errorf("stdout = %q", got)
	}
	if !strings.HasPrefix(rec.Stderr(), "0123456789101112") {
		t.Errorf("stderr = %q", rec.Stderr())
	}
	if !rec.Terminated() {
		t.Error("expected terminate")
	}
}

func TestCrasherPanics(t *testing.T) {
	rec := language.NewRecorder()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
		if rec.Stdout() != "SSS" {
			t.Errorf("stdout before panic = %q", rec.Stdout())
		}
	}()
	New().Interpret("crasher", "", "", rec)
}

func TestUnknownProgram(t *testing.T) {
	rec := language.NewRecorder()
	New().Interpret("nope", "", "", rec)
	if !strings.Contains(rec.Stderr(), "Unrecognized program: nope") {
		t.Errorf("stderr = %q", rec.Stderr())
	}
	if rec.Terminated() {
		t.Error("unknown programs leave termination to the runner")
	}
}
