// Package controller runs tasks for one machine strictly one at a time, in
// submission order, on a single worker goroutine.
//
// A task that fails (and is not allowed to fail) latches an error and halts
// the worker until ClearErrors is called; queued tasks stay queued.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-docker-machine/internal/process"
	"github.com/randomizedcoder/go-docker-machine/internal/stream"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// DefaultIdleTick is how often an idle worker refreshes its gauges.
const DefaultIdleTick = time.Second

// ErrAlreadyRunning is returned by Run when another Run call is active.
var ErrAlreadyRunning = errors.New("controller worker already running")

// HistoryStore persists terminal task records.
type HistoryStore interface {
	Insert(ctx context.Context, rec task.Record) error
}

// Collector receives engine metrics. *metrics.Collector implements it.
type Collector interface {
	TaskStarted(machine string)
	TaskFinished(rec task.Record)
	SetQueueDepth(machine string, depth int)
	SetErrorLatched(machine string, latched bool)
	OutputLine(machine, stream string)
}

// LineObserver sees every output line. *logging.OutputLogger implements it.
type LineObserver interface {
	ObserveLine(ctx context.Context, stream, line string)
}

// Callbacks contains optional callback functions for task events.
// They run on the worker goroutine; final is true when the queue was empty
// when the task was dequeued.
type Callbacks struct {
	OnStart   func(t *task.Task, final bool)
	OnSuccess func(t *task.Task, final bool)
	OnError   func(t *task.Task, err error, final bool)
}

// Config holds configuration for creating a new Controller.
type Config struct {
	Name string
	Cwd  string

	// Options are the machine's create options, exposed through Config().
	Options map[string]string

	// Env is added to the inherited process environment.
	Env map[string]string

	Logger    *slog.Logger
	Callbacks Callbacks

	// Optional observers
	History HistoryStore
	Metrics Collector
	Output  LineObserver

	IdleTick time.Duration
}

// TaskError is the latched error of a halted controller.
type TaskError struct {
	Machine string
	TaskID  string
	Task    string
	Err     error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("machine (%s) task %q failed: %v", e.Machine, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Controller owns a FIFO of tasks and the single worker that executes them.
type Controller struct {
	name      string
	cwd       string
	options   map[string]string
	logger    *slog.Logger
	callbacks Callbacks
	store     HistoryStore
	metrics   Collector
	output    LineObserver
	idleTick  time.Duration

	stdout *stream.Queue
	stderr *stream.Queue

	wake    chan struct{}
	running atomic.Bool

	mu      sync.Mutex
	queue   []*task.Task
	current *task.Task
	env     map[string]string
	ip      string
	status  string
	logs    string
	lastErr *TaskError
	history []*task.Task

	// Closed and replaced on every state change; Wait blocks on it
	changed chan struct{}
}

// New creates a controller. Call Run to start the worker.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	idleTick := cfg.IdleTick
	if idleTick <= 0 {
		idleTick = DefaultIdleTick
	}

	env := process.EnvMap(os.Environ())
	maps.Copy(env, cfg.Env)

	return &Controller{
		name:      cfg.Name,
		cwd:       cfg.Cwd,
		options:   maps.Clone(cfg.Options),
		logger:    logger.With("machine", cfg.Name),
		callbacks: cfg.Callbacks,
		store:     cfg.History,
		metrics:   cfg.Metrics,
		output:    cfg.Output,
		idleTick:  idleTick,
		stdout:    stream.NewQueue(),
		stderr:    stream.NewQueue(),
		wake:      make(chan struct{}, 1),
		env:       env,
		changed:   make(chan struct{}),
	}
}

// AddTask enqueues t. Never blocks.
func (c *Controller) AddTask(t *task.Task) {
	c.mu.Lock()
	c.queue = append(c.queue, t)
	depth := len(c.queue)
	c.broadcastLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetQueueDepth(c.name, depth)
	}
	c.logger.Debug("task_queued",
		"task_id", t.ID(),
		"task", t.Name(),
		"queue_depth", depth,
	)
	c.signal()
}

// Wait blocks until every queued task has finished (returns nil), or the
// worker is halted on a latched error with nothing running (returns the
// *TaskError), or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := c.current == nil
		if idle && c.lastErr != nil {
			err := c.lastErr
			c.mu.Unlock()
			return err
		}
		if idle && len(c.queue) == 0 {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// WaitCleared blocks until no error is latched, or ctx is done.
func (c *Controller) WaitCleared(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.lastErr == nil {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// ClearErrors resets the latched error and resumes the worker.
func (c *Controller) ClearErrors() {
	c.mu.Lock()
	hadErr := c.lastErr != nil
	c.lastErr = nil
	c.broadcastLocked()
	c.mu.Unlock()

	if hadErr {
		c.logger.Info("errors_cleared")
		if c.metrics != nil {
			c.metrics.SetErrorLatched(c.name, false)
		}
	}
	c.signal()
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// broadcastLocked wakes every Wait caller. c.mu must be held.
func (c *Controller) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
