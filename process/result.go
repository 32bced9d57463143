package process

import (
	"fmt"
	"time"
)

// ExitCodeUnknown is reported when the process was terminated by a signal.
const ExitCodeUnknown = -1

// Result describes a run that reached a terminal state.
type Result struct {
	// Argv is the command that ran.
	Argv []string `json:"argv"`
	// State is StateFinished or StateCancelled.
	State State `json:"state"`
	// ExitCode is the process exit code, ExitCodeUnknown if killed by a signal.
	ExitCode int `json:"exit_code"`
	// Signal names the terminating signal ("SIGTERM"), empty otherwise.
	Signal string `json:"signal,omitempty"`
	// Lines is the number of lines delivered.
	Lines int `json:"lines"`
	// Output holds every line. Only Run fills it.
	Output []string `json:"output,omitempty"`
	// StartedAt is when the process was spawned.
	StartedAt time.Time `json:"started_at"`
	// Duration is how long the process ran.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports a natural exit with status zero.
func (r Result) Succeeded() bool {
	return r.State == StateFinished && r.ExitCode == 0
}

// ExitError is returned by Run when the process exits unsuccessfully.
type ExitError struct {
	Code   int
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("process: terminated by %s", e.Signal)
	}
	return fmt.Sprintf("process: exit code %d", e.Code)
}
