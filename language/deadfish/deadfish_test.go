package deadfish

import (
	"strings"
	"testing"

	"github.com/caffeineduck/tib/language"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		program string
		args    string
		want    string
	}{
		{"zero", "ooo", "", "0\n0\n0\n"},
		{"square then print", "iiisiiiso", "", "144\n"},
		{"two outputs", "iiisodso", "", "9\n64\n"},
		{"sixteen squares to zero", "iiiisso", "", "0\n"},
		{"decrement floor", "ddo", "", "0\n"},
		{"ignores other bytes", "i i\nxo", "", "2\n"},
		{
			"char output",
			"iisiiiisiiiiiiiioiiiiiiiiiiiiiiiiiiiiiiiiiiiiioiiiiiiiooiiio\n" +
				"dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddo\n" +
				"dddddddddddddddddddddsddoddddddddoiiioddddddoddddddddo\n",
			"-o",
			"Hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := language.NewRecorder()
			New().Interpret(tt.program, "", tt.args, rec)
			if got := rec.Stdout(); got != tt.want {
				t.Errorf("stdout = %q, want %q", got, tt.want)
			}
			if rec.Stderr() != "" {
				t.Errorf("unexpected stderr %q", rec.Stderr())
			}
			if !rec.Terminated() {
				t.Error("interpreter did not terminate")
			}
		})
	}
}

func TestStreamsEachOutput(t *testing.T) {
	rec := language.NewRecorder()
	New().Interpret("ioioio", "", "", rec)
	if rec.Writes() != 3 {
		t.Errorf("writes = %d, want 3", rec.Writes())
	}
}

func TestMetadata(t *testing.T) {
	d := New()
	if d.Name() != "Deadfish" {
		t.Errorf("name = %q", d.Name())
	}
	if !strings.Contains(d.Help(), "-o") {
		t.Error("help should describe -o")
	}
	if !strings.HasPrefix(d.Homepage(), "https://") {
		t.Errorf("homepage = %q", d.Homepage())
	}
}
