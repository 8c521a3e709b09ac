// Package language defines the contract between esoteric-language
// interpreters and the job transport.
package language

// Writer is the only channel an interpreter has to the outside world.
// Every call is forwarded to the transport immediately.
//
// Terminate and TerminateWithError end the job; after either of them
// further calls are dropped.
type Writer interface {
	// WriteBoth appends out to stdout and err to stderr as a single unit.
	WriteBoth(out, err string)

	// WriteOut appends to stdout only.
	WriteOut(out string)

	// WriteErr appends to stderr only.
	WriteErr(err string)

	// Terminate signals successful completion.
	Terminate()

	// TerminateWithError signals abnormal completion with a human-readable message.
	TerminateWithError(msg string)
}

// Language is an interpreter plug-in.
// Implement this interface to add support for a new language.
type Language interface {
	// Name returns the unique identifier used in job requests (e.g., "Deadfish").
	Name() string

	// Help returns the text shown for the "-h" argument.
	Help() string

	// Homepage returns a URL describing the language.
	Homepage() string

	// Interpret runs program against stdin. Returning without calling
	// Terminate or TerminateWithError is an implicit success.
	Interpret(program, stdin, args string, w Writer)
}

// HelpArg is the argument string that prints a language's help instead of running it.
const HelpArg = "-h"
