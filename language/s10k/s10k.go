// Package s10k provides S10K, a language whose every program prints
// ten thousand copies of "S".
package s10k

import (
	"strings"

	"github.com/caffeineduck/tib/language"
)

// Count is how many "S" every program prints.
const Count = 10000

const help = `S10K, the first TIB-original language.
Prints 10,000 copies of "S" and halts.
`

type S10K struct{}

func New() *S10K {
	return &S10K{}
}

func (s *S10K) Name() string     { return "S10K" }
func (s *S10K) Help() string     { return help }
func (s *S10K) Homepage() string { return "https://try-in-browser.netlify.app/" }

func (s *S10K) Interpret(_, _, _ string, w language.Writer) {
	w.WriteOut(strings.Repeat("S", Count))
	w.Terminate()
}
