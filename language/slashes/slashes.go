// Package slashes provides the /// string-rewriting language for tib.
package slashes

import (
	"strings"

	"github.com/caffeineduck/tib/language"
)

const help = `/// (https://esolangs.org/wiki////)
Accepted arguments:
-h    Show this help and exit

/pattern/replacement/string replaces all instances of pattern in string with replacement.
Note that /// doesn't use regex, this is simple string substitution. To escape ` + "`/` or `\\`" + `,
you can use ` + "`\\`" + `.
`

type mode int

const (
	modePrint mode = iota
	modePattern
	modeReplacement
)

// Slashes implements language.Language.
type Slashes struct{}

// New returns a /// interpreter.
func New() *Slashes {
	return &Slashes{}
}

// Name returns "///".
func (s *Slashes) Name() string {
	return "///"
}

func (s *Slashes) Help() string {
	return help
}

func (s *Slashes) Homepage() string {
	return "https://esolangs.org/wiki////"
}

// Interpret may never return: an empty pattern, or a replacement that
// reintroduces its pattern, rewrites forever.
func (s *Slashes) Interpret(program, _, _ string, w language.Writer) {
	var patt, repl strings.Builder
	m := modePrint
	pgm := []rune(program)

	for i := 0; i < len(pgm); i++ {
		c := pgm[i]
		if c == '/' {
			switch m {
			case modePrint:
				m = modePattern
			case modePattern:
				m = modeReplacement
			case modeReplacement:
				rest := substitute(string(pgm[i+1:]), patt.String(), repl.String())
				pgm = []rune(rest)
				i = -1
				patt.Reset()
				repl.Reset()
				m = modePrint
			}
			continue
		}

		if c == '\\' {
			if i+1 >= len(pgm) {
				continue
			}
			i++
			c = pgm[i]
		}

		switch m {
		case modePrint:
			w.WriteOut(string(c))
		case modePattern:
			patt.WriteRune(c)
		case modeReplacement:
			repl.WriteRune(c)
		}
	}
}

func substitute(s, patt, repl string) string {
	if patt == "" {
		// Matches everywhere, forever.
		for {
		}
	}
	for strings.Contains(s, patt) {
		s = strings.ReplaceAll(s, patt, repl)
	}
	return s
}
