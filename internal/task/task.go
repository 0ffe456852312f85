package task

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultBin is used when Config.Bin is empty.
	DefaultBin = "docker-machine"

	// DefaultTimeout is used when Config.Timeout is not positive.
	DefaultTimeout = 540 * time.Second

	// StderrTailLines is how many trailing stderr lines a task keeps for
	// error reports.
	StderrTailLines = 20
)

// OutputHandler receives the captured stdout and stderr of a successful
// task, joined with "\n", in read order within each stream.
type OutputHandler interface {
	HandleOutput(text string)
}

// HandlerFunc adapts a function to OutputHandler.
type HandlerFunc func(text string)

// HandleOutput calls f(text).
func (f HandlerFunc) HandleOutput(text string) {
	f(text)
}

// LineSink receives cleaned output lines as they are read.
// *stream.Queue satisfies it.
type LineSink interface {
	Push(line string)
}

// Config holds configuration for creating a new Task.
type Config struct {
	// Name labels the task in logs and history. Defaults to Cmd, or Bin
	// when Cmd is empty.
	Name string

	// Dir is the working directory of the process.
	Dir string

	Bin    string
	Cmd    string
	Params []string

	Timeout       time.Duration
	AllowedToFail bool

	// Handler, when set, enables output capture and is called once after
	// the task succeeds.
	Handler OutputHandler
}

// Task is a single external-process invocation. A Task executes at most
// once; its runtime state is safe to read from any goroutine.
type Task struct {
	id            string
	name          string
	dir           string
	bin           string
	cmd           string
	params        []string
	timeout       time.Duration
	allowedToFail bool
	handler       OutputHandler

	mu         sync.Mutex
	executed   bool
	state      State
	exitCode   int
	output     []string
	stderrTail []string
	started    time.Time
	finished   time.Time
	err        error
	streamErr  error
}

// New creates a pending task. Params are copied.
func New(cfg Config) *Task {
	bin := cfg.Bin
	if bin == "" {
		bin = DefaultBin
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Cmd
	}
	if name == "" {
		name = bin
	}

	return &Task{
		id:            ulid.Make().String(),
		name:          name,
		dir:           cfg.Dir,
		bin:           bin,
		cmd:           cfg.Cmd,
		params:        slices.Clone(cfg.Params),
		timeout:       timeout,
		allowedToFail: cfg.AllowedToFail,
		handler:       cfg.Handler,
		state:         StatePending,
		exitCode:      -1,
	}
}

// Clone returns a fresh pending task with the same configuration and a new ID.
func (t *Task) Clone() *Task {
	return New(Config{
		Name:          t.name,
		Dir:           t.dir,
		Bin:           t.bin,
		Cmd:           t.cmd,
		Params:        t.params,
		Timeout:       t.timeout,
		AllowedToFail: t.allowedToFail,
		Handler:       t.handler,
	})
}

// ID returns the task's ULID.
func (t *Task) ID() string { return t.id }

func (t *Task) Name() string { return t.name }
func (t *Task) Dir() string  { return t.dir }
func (t *Task) Bin() string  { return t.bin }
func (t *Task) Cmd() string  { return t.cmd }

func (t *Task) Timeout() time.Duration { return t.timeout }
func (t *Task) AllowedToFail() bool    { return t.allowedToFail }

// Params returns a copy of the positional arguments.
func (t *Task) Params() []string { return slices.Clone(t.params) }

// Args returns the arguments after the binary. An empty subcommand is
// omitted rather than passed as an empty argument.
func (t *Task) Args() []string {
	args := make([]string, 0, len(t.params)+1)
	if t.cmd != "" {
		args = append(args, t.cmd)
	}
	return append(args, t.params...)
}

// Command returns "<bin> <cmd>" for messages.
func (t *Task) Command() string {
	if t.cmd == "" {
		return t.bin
	}
	return t.bin + " " + t.cmd
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ExitCode returns the process exit code, or -1 before the process exits or
// when it never started.
func (t *Task) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Output returns a copy of the captured lines. Empty unless a handler is set.
func (t *Task) Output() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.output)
}

// StderrTail returns up to StderrTailLines of the most recent stderr output.
func (t *Task) StderrTail() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.stderrTail)
}

// Started returns when the process was spawned (zero if it never was).
func (t *Task) Started() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Finished returns when the task reached a terminal state.
func (t *Task) Finished() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Duration returns the run time so far, or the total once finished.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.started.IsZero():
		return 0
	case t.finished.IsZero():
		return time.Since(t.started)
	default:
		return t.finished.Sub(t.started)
	}
}

// Err returns the error the task terminated with, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// StreamErr returns the output reader failure, if any: a read error or a
// reader goroutine that did not stop when the task finished. Output
// captured by such a task may be incomplete even when it succeeded.
func (t *Task) StreamErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamErr
}

// String returns "<bin> <cmd>: <exit code>".
func (t *Task) String() string {
	return fmt.Sprintf("%s: %d", t.Command(), t.ExitCode())
}

// Record returns a point-in-time snapshot of the task.
func (t *Task) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		ID:       t.id,
		Name:     t.name,
		Bin:      t.bin,
		Cmd:      t.cmd,
		Args:     slices.Clone(t.params),
		State:    t.state,
		ExitCode: t.exitCode,
		Started:  t.started,
		Finished: t.finished,
	}
	switch {
	case t.err != nil:
		rec.Error = t.err.Error()
	case t.streamErr != nil:
		rec.Error = t.streamErr.Error()
	}
	return rec
}

// Record is the serializable summary of a task used by history, the API and
// reports.
type Record struct {
	ID       string    `json:"id"`
	Machine  string    `json:"machine,omitempty"`
	Name     string    `json:"name"`
	Bin      string    `json:"bin"`
	Cmd      string    `json:"cmd"`
	Args     []string  `json:"args"`
	State    State     `json:"state"`
	ExitCode int       `json:"exit_code"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Duration returns Finished - Started, or 0 when either is unset.
func (r Record) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// String mirrors Task.String.
func (r Record) String() string {
	cmd := strings.TrimSpace(r.Bin + " " + r.Cmd)
	return fmt.Sprintf("%s: %d", cmd, r.ExitCode)
}
