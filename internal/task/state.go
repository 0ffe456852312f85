// Package task runs one external command to completion: it spawns the
// process, streams its output without blocking, enforces a deadline and
// classifies the outcome.
package task

import "fmt"

// State represents the lifecycle state of a task.
type State int

const (
	// StatePending is the initial state: created, possibly queued, not started.
	StatePending State = iota

	// StateRunning indicates the process has been spawned and not yet reaped.
	StateRunning

	// StateSucceeded indicates exit code 0, or any exit code for an
	// allowed-to-fail task.
	StateSucceeded

	// StateFailed indicates a spawn failure or a non-zero exit.
	StateFailed

	// StateTimedOut indicates the process was killed at its deadline.
	StateTimedOut

	// StateCancelled indicates the process was killed because the context
	// passed to Execute was cancelled.
	StateCancelled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the task has finished, whatever the outcome.
func (s State) IsTerminal() bool {
	return s >= StateSucceeded && s <= StateCancelled
}

// IsFailure returns true for the terminal states that raise an error.
func (s State) IsFailure() bool {
	return s == StateFailed || s == StateTimedOut || s == StateCancelled
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for s := StatePending; s <= StateCancelled; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return StatePending, fmt.Errorf("unknown task state %q", name)
}
