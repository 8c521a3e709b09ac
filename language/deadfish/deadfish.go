// Package deadfish provides the Deadfish language for tib.
package deadfish

import (
	"strconv"

	"github.com/caffeineduck/tib/language"
)

const help = `Deadfish (https://esolangs.org/wiki/Deadfish)
Accepted arguments:
-h    Show this help and exit
-o    Output as charcode
-n    Output as number (default)
`

// Deadfish implements language.Language.
type Deadfish struct{}

// New returns a Deadfish interpreter.
func New() *Deadfish {
	return &Deadfish{}
}

// Name returns "Deadfish".
func (d *Deadfish) Name() string {
	return "Deadfish"
}

func (d *Deadfish) Help() string {
	return help
}

func (d *Deadfish) Homepage() string {
	return "https://esolangs.org/wiki/Deadfish"
}

// Interpret runs the accumulator machine. Every "o" is written as soon as
// it is reached so long programs stream their output.
func (d *Deadfish) Interpret(program, _, args string, w language.Writer) {
	charOutput := args == "-o"
	counter := 0

	for i := 0; i < len(program); i++ {
		switch program[i] {
		case 'i':
			if counter == 255 {
				counter = 0
			} else {
				counter++
			}
		case 'd':
			if counter == 0 || counter == 257 {
				counter = 0
			} else {
				counter--
			}
		case 's':
			if counter == 16 {
				counter = 0
			} else {
				counter *= counter
			}
		case 'o':
			if charOutput {
				w.WriteOut(string(rune(byte(counter % 256))))
			} else {
				w.WriteOut(strconv.Itoa(counter) + "\n")
			}
		}
	}
	w.Terminate()
}
