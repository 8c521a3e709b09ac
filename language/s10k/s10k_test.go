package s10k

import (
	"strings"
	"testing"

	"github.com/caffeineduck/tib/language"
)

func TestInterpretIgnoresProgram(t *testing.T) {
	for _, program := range []string{"", "ooo", "anything at all"} {
		rec := language.NewRecorder()
		New().Interpret(program, "stdin", "", rec)
		out := rec.Stdout()
		if len(out) != Count || strings.Trim(out, "S") != "" {
			t.Errorf("program %q: got %d bytes", program, len(out))
		}
		if rec.Stderr() != "" {
			t.Errorf("program %q: unexpected stderr %q", program, rec.Stderr())
		}
	}
}
