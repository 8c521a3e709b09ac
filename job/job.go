// Package job runs a single interpreter invocation against a Writer.
package job

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/tib/language"
)

var (
	ErrUnknownLanguage  = errors.New("Unknown lang")
	ErrInterpreterFault = errors.New("interpreter fault")
)

// Request identifies which interpreter to invoke and its inputs.
type Request struct {
	Language  string `json:"language"`
	Program   string `json:"program"`
	Stdin     string `json:"stdin"`
	Arguments string `json:"arguments"`
}

// Runner resolves languages against a Registry and drives them.
type Runner struct {
	registry *Registry
}

func NewRunner(registry *Registry) *Runner {
	if registry == nil {
		registry = DefaultRegistry(false)
	}
	return &Runner{registry: registry}
}

// Registry returns the languages this runner can resolve.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes req, reporting everything through w. Exactly one terminal
// call reaches w as long as w drops calls after its first terminal.
func (r *Runner) Run(req Request, w language.Writer) {
	lang, ok := r.registry.Get(req.Language)
	if !ok {
		msg := fmt.Sprintf("%v: %s", ErrUnknownLanguage, req.Language)
		w.WriteErr(msg)
		w.TerminateWithError(msg)
		return
	}

	if req.Arguments == language.HelpArg {
		w.WriteOut(lang.Help())
		w.Terminate()
		return
	}

	defer func() {
		if v := recover(); v != nil {
			w.TerminateWithError(fmt.Sprintf("%v: %v", ErrInterpreterFault, v))
		}
	}()

	lang.Interpret(req.Program, req.Stdin, req.Arguments, w)
	w.Terminate()
}
