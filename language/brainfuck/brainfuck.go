// Package brainfuck provides the brainfuck language for tib.
package brainfuck

import (
	"fmt"

	"github.com/caffeineduck/tib/language"
)

const help = `brainfuck (https://esolangs.org/wiki/Brainfuck)
Accepted arguments:
-h    Show this help and exit

+    Increment cell
-    Decrement cell
>    Move pointer right
<    Move pointer left
.    Output character value of cell
,    Read a character as an integer (0 at end of input)
[    Start of while loop
]    End of loop
`

// tapeBlock is how many cells the tape grows by when the pointer runs off the right end.
const tapeBlock = 100

// Brainfuck implements language.Language.
type Brainfuck struct{}

// New returns a brainfuck interpreter.
func New() *Brainfuck {
	return &Brainfuck{}
}

// Name returns "brainfuck".
func (b *Brainfuck) Name() string {
	return "brainfuck"
}

func (b *Brainfuck) Help() string {
	return help
}

func (b *Brainfuck) Homepage() string {
	return "https://esolangs.org/wiki/Brainfuck"
}

func (b *Brainfuck) Interpret(program, stdin, _ string, w language.Writer) {
	pgm := []byte(program)

	jumps, err := matchLoops(pgm)
	if err != nil {
		w.TerminateWithError(err.Error())
		return
	}

	input := []byte(stdin)
	tape := make([]byte, tapeBlock)
	pos := 0

	for pc := 0; pc < len(pgm); pc++ {
		switch pgm[pc] {
		case '+':
			tape[pos]++
		case '-':
			tape[pos]--
		case '>':
			pos++
			if pos == len(tape) {
				tape = append(tape, make([]byte, tapeBlock)...)
			}
		case '<':
			if pos == 0 {
				w.TerminateWithError(fmt.Sprintf("Error on `<` at index %d: Reached left end of tape", pc))
				return
			}
			pos--
		case '.':
			// A cell is a code point in 0..255, not a raw byte.
			w.WriteOut(string(rune(tape[pos])))
		case ',':
			if len(input) == 0 {
				tape[pos] = 0
			} else {
				tape[pos] = input[0]
				input = input[1:]
			}
		case '[':
			if tape[pos] == 0 {
				pc = jumps[pc]
			}
		case ']':
			if tape[pos] != 0 {
				pc = jumps[pc]
			}
		}
	}
	w.Terminate()
}

// matchLoops pairs every bracket with its partner so jumps are O(1) at run time.
func matchLoops(pgm []byte) (map[int]int, error) {
	jumps := make(map[int]int)
	var open []int

	for i, c := range pgm {
		switch c {
		case '[':
			open = append(open, i)
		case ']':
			if len(open) == 0 {
				return nil, fmt.Errorf("Extra `]` found at index %d", i)
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			jumps[start] = i
			jumps[i] = start
		}
	}

	if len(open) > 0 {
		return nil, fmt.Errorf("Missing closing `]` for `[` at indices %v", open)
	}
	return jumps, nil
}
