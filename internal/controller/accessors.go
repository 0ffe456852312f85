package controller

import (
	"maps"

	"github.com/randomizedcoder/go-docker-machine/internal/stream"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

func (c *Controller) Name() string { return c.name }
func (c *Controller) Cwd() string  { return c.cwd }

// Config returns a copy of the machine's create options.
func (c *Controller) Config() map[string]string { return maps.Clone(c.options) }

// Stdout returns the shared stdout line queue of all tasks.
func (c *Controller) Stdout() *stream.Queue { return c.stdout }

// Stderr returns the shared stderr line queue of all tasks.
func (c *Controller) Stderr() *stream.Queue { return c.stderr }

// IP returns the address captured by IPCapture.
func (c *Controller) IP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ip
}

// Status returns the status captured by StatusCapture.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Logs returns the service logs captured by LogsCapture.
func (c *Controller) Logs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logs
}

// Env returns a copy of the environment the next task will receive.
func (c *Controller) Env() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.env)
}

// Errors returns the latched error, or nil.
func (c *Controller) Errors() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return nil
	}
	return c.lastErr
}

// History returns "<bin> <cmd>: <exit code>" for every finished task, oldest
// first.
func (c *Controller) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.history))
	for i, t := range c.history {
		out[i] = t.String()
	}
	return out
}

// Records returns the finished tasks as records, oldest first.
func (c *Controller) Records() []task.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordsLocked(c.history)
}

// Pending returns the queued tasks as records, next first.
func (c *Controller) Pending() []task.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordsLocked(c.queue)
}

// Current returns the running task, if any.
func (c *Controller) Current() (task.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return task.Record{}, false
	}
	rec := c.current.Record()
	rec.Machine = c.name
	return rec, true
}

// Busy reports whether a task is running or queued.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil || len(c.queue) > 0
}

func (c *Controller) recordsLocked(tasks []*task.Task) []task.Record {
	out := make([]task.Record, len(tasks))
	for i, t := range tasks {
		out[i] = t.Record()
		out[i].Machine = c.name
	}
	return out
}

// Snapshot is a consistent view of the controller for dashboards and the API.
type Snapshot struct {
	Name      string       `json:"name"`
	Cwd       string       `json:"cwd"`
	IP        string       `json:"ip"`
	Status    string       `json:"status"`
	Busy      bool         `json:"busy"`
	Halted    bool         `json:"halted"`
	LastError string       `json:"last_error,omitempty"`
	Current   *task.Record `json:"current,omitempty"`
	Pending   int          `json:"pending"`
	Finished  int          `json:"finished"`
}

// Snapshot returns the controller state taken under a single lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Name:     c.name,
		Cwd:      c.cwd,
		IP:       c.ip,
		Status:   c.status,
		Busy:     c.current != nil || len(c.queue) > 0,
		Halted:   c.lastErr != nil,
		Pending:  len(c.queue),
		Finished: len(c.history),
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	if c.current != nil {
		rec := c.current.Record()
		rec.Machine = c.name
		s.Current = &rec
	}
	return s
}
