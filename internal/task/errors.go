package task

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is against a returned *Error.
var (
	ErrSpawn       = errors.New("failed to start process")
	ErrNonZeroExit = errors.New("process exited with non-zero code")
	ErrTimeout     = errors.New("process timed out")
	ErrCancelled   = errors.New("task cancelled")

	// ErrAlreadyExecuted is returned when Execute is called a second time.
	// Use Clone to run the same command again.
	ErrAlreadyExecuted = errors.New("task already executed")
)

// Error describes why a task did not succeed.
type Error struct {
	// Kind is one of ErrSpawn, ErrNonZeroExit, ErrTimeout, ErrCancelled.
	Kind error

	TaskID string

	// Task is the command summary, e.g. "docker-machine create".
	Task string

	// ExitCode is -1 when the process never ran.
	ExitCode int

	// StderrTail holds the last lines the process wrote to stderr.
	StderrTail []string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Task, e.Kind)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if n := len(e.StderrTail); n > 0 {
		fmt.Fprintf(&b, ": %s", e.StderrTail[n-1])
	}
	return b.String()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
