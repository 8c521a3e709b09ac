package slashes

import (
	"testing"

	"github.com/caffeineduck/tib/language"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		program string
		want    string
	}{
		{"plain print", "Hello, world!", "Hello, world!"},
		{"single substitution", "/foo/bar/foo foo", "bar bar"},
		{"chained substitution", "/a/b//b/c/aaa", "ccc"},
		{"escaped slash", `\/\\`, `/\`},
		{"escape in pattern", `/\//x/a/b`, "axb"},
		{"substitution shrinks", "/ab/a/abbbb", "a"},
		{"trailing backslash", `abc\`, "abc"},
		{"unfinished command", "hi/pat/rep", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := language.NewRecorder()
			New().Interpret(tt.program, "", "", rec)
			if got := rec.Stdout(); got != tt.want {
				t.Errorf("stdout = %q, want %q", got, tt.want)
			}
			if rec.Terminated() {
				t.Error("/// relies on the runner for its terminal call")
			}
		})
	}
}
