package supervisor

import (
	"fmt"
	"time"
)

// State is where the supervisor is in its lifecycle.
type State int

const (
	// NotReady means no context has finished bootstrapping yet.
	NotReady State = iota
	// Ready means idle; Run is accepted.
	Ready
	// Running means a job is in flight.
	Running
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "not ready"
	case Ready:
		return "ready"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome classifies how the last run stopped.
type Outcome int

const (
	None Outcome = iota
	Finished
	Crashed
	LimitExceeded
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case None:
		return ""
	case Finished:
		return "finished"
	case Crashed:
		return "interpreter crashed"
	case LimitExceeded:
		return "output limit exceeded"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Status is a snapshot returned by Poll.
type Status struct {
	State   State
	Stdout  string
	Stderr  string
	Outcome Outcome
	// Err is the underlying failure for Crashed and LimitExceeded.
	Err     error
	Elapsed time.Duration
}

// Summary is the one-line classification shown after a run, preceded by
// the elapsed time. It is empty while nothing has completed.
func (s Status) Summary() string {
	if s.Outcome == None {
		return ""
	}
	return fmt.Sprintf("Elapsed time: %.6f sec\n%s", s.Elapsed.Seconds(), s.Outcome)
}
