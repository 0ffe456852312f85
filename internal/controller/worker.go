package controller

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/randomizedcoder/go-docker-machine/internal/logging"
	"github.com/randomizedcoder/go-docker-machine/internal/stream"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// Run executes queued tasks until ctx is done. Cancelling ctx kills the
// running task's process. Only one Run may be active per controller.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.logger.Debug("worker_starting")

	ticker := time.NewTicker(c.idleTick)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Debug("worker_stopped", "reason", "context_cancelled")
			return err
		}

		t, final, env := c.next()
		if t == nil {
			select {
			case <-ctx.Done():
			case <-c.wake:
			case <-ticker.C:
				c.tick()
			}
			continue
		}

		c.runTask(ctx, t, final, env)
	}
}

// next dequeues the next task unless the worker is halted or idle.
// The returned env is a copy taken at dequeue time.
func (c *Controller) next() (*task.Task, bool, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastErr != nil || len(c.queue) == 0 {
		return nil, false, nil
	}

	t := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.current = t
	final := len(c.queue) == 0
	c.broadcastLocked()

	if c.metrics != nil {
		c.metrics.SetQueueDepth(c.name, len(c.queue))
	}
	return t, final, maps.Clone(c.env)
}

func (c *Controller) runTask(ctx context.Context, t *task.Task, final bool, env map[string]string) {
	ctx = logging.ContextAttrs(ctx,
		slog.String("task_id", t.ID()),
		slog.String("task", t.Name()),
	)

	c.logger.InfoContext(ctx, "task_started",
		"command", t.Command(),
		"args", t.Args(),
		"timeout", t.Timeout().String(),
	)
	if c.metrics != nil {
		c.metrics.TaskStarted(c.name)
	}
	if c.callbacks.OnStart != nil {
		c.callbacks.OnStart(t, final)
	}

	err := t.Execute(ctx, env, c.sink(ctx, "stdout", c.stdout), c.sink(ctx, "stderr", c.stderr))

	rec := t.Record()
	rec.Machine = c.name

	c.mu.Lock()
	c.history = append(c.history, t)
	if err != nil {
		c.lastErr = &TaskError{
			Machine: c.name,
			TaskID:  t.ID(),
			Task:    t.Name(),
			Err:     err,
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.ErrorContext(ctx, "task_failed",
			"state", rec.State.String(),
			"exit_code", rec.ExitCode,
			"duration", rec.Duration().String(),
			"error", err,
		)
	} else {
		c.logger.InfoContext(ctx, "task_succeeded",
			"exit_code", rec.ExitCode,
			"duration", rec.Duration().String(),
		)
		if streamErr := t.StreamErr(); streamErr != nil {
			c.logger.WarnContext(ctx, "task_output_incomplete", "error", streamErr)
		}
	}

	if c.metrics != nil {
		c.metrics.TaskFinished(rec)
		if err != nil {
			c.metrics.SetErrorLatched(c.name, true)
		}
	}
	if c.store != nil {
		// Record even when the run was cancelled
		if storeErr := c.store.Insert(context.WithoutCancel(ctx), rec); storeErr != nil {
			c.logger.WarnContext(ctx, "history_insert_failed", "error", storeErr)
		}
	}

	if err != nil {
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(t, err, final)
		}
	} else if c.callbacks.OnSuccess != nil {
		c.callbacks.OnSuccess(t, final)
	}

	c.mu.Lock()
	c.current = nil
	c.broadcastLocked()
	c.mu.Unlock()
}

// tick runs while the worker is idle or halted.
func (c *Controller) tick() {
	c.mu.Lock()
	depth := len(c.queue)
	halted := c.lastErr != nil
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetQueueDepth(c.name, depth)
	}
	if halted && depth > 0 {
		c.logger.Debug("worker_halted", "queue_depth", depth)
	}
}

// lineSink fans one output stream out to the shared queue and observers.
type lineSink struct {
	c      *Controller
	ctx    context.Context
	name   string
	target *stream.Queue
}

func (c *Controller) sink(ctx context.Context, name string, target *stream.Queue) lineSink {
	return lineSink{c: c, ctx: ctx, name: name, target: target}
}

func (s lineSink) Push(line string) {
	s.target.Push(line)
	if s.c.metrics != nil {
		s.c.metrics.OutputLine(s.c.name, s.name)
	}
	if s.c.output != nil {
		s.c.output.ObserveLine(s.ctx, s.name, line)
	}
}
