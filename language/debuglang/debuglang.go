// Package debuglang provides ExampleLang, a language whose programs
// exercise the job protocol's failure modes. It is only registered when
// debug languages are enabled.
//
// Programs:
//
//	lang     print some characters on stdout and stderr, and halt (fast)
//	slow     print some characters on stdout and stderr, and halt (slow)
//	crasher  print some characters, then panic
//	looper   print things slowly, forever
//	talker   print things very fast, exceeding the output limit
//	aborter  print some characters, then kill the isolated context
package debuglang

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caffeineduck/tib/language"
)

// Name is the identifier ExampleLang is registered under.
const Name = "ExampleLang"

// AbortExitCode is the exit status the aborter program terminates the context with.
const AbortExitCode = 3

const help = `An example language for debugging purposes.

program == "lang": Print some chars on stdout and stderr, and halt (fast).
program == "slow": Print some chars on stdout and stderr, and halt (slow).
program == "crasher": Print some chars but crash after a while.
program == "looper": Print things very slowly, forever.
program == "talker": Print things very fast, exceeding the output limit.
program == "aborter": Print some chars, then take the whole worker down.
`

// Tick is the pause between writes for the slow programs.
var Tick = 20 * time.Millisecond

type ExampleLang struct{}

func New() *ExampleLang {
	return &ExampleLang{}
}

func (e *ExampleLang) Name() string     { return Name }
func (e *ExampleLang) Help() string     { return help }
func (e *ExampleLang) Homepage() string { return "https://example.com" }

func (e *ExampleLang) Interpret(program, _, _ string, w language.Writer) {
	switch program {
	case "lang":
		for i := 0; i < 40; i++ {
			w.WriteBoth("S", strconv.Itoa(i))
		}
		w.Terminate()
	case "slow":
		for i := 0; i < 10; i++ {
			w.WriteBoth("S", strconv.Itoa(i))
			time.Sleep(Tick)
		}
		w.Terminate()
	case "crasher":
		for i := 0; i < 3; i++ {
			w.WriteBoth("S", strconv.Itoa(i))
		}
		panic("wtf")
	case "looper":
		for i := 0; ; i = (i + 1) % 10 {
			w.WriteBoth("S", strconv.Itoa(i))
			time.Sleep(Tick)
		}
	case "talker":
		for i := 0; ; i++ {
			w.WriteOut("S")
			if i%1000 == 0 {
				w.WriteErr(strconv.Itoa(i / 1000 % 10))
			}
		}
	case "aborter":
		w.WriteBoth("S", "0")
		os.Exit(AbortExitCode)
	default:
		w.WriteErr(fmt.Sprintf("Unrecognized program: %s", program))
	}
}
