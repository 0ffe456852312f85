package controller

import (
	"maps"
	"strings"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

// ParseEnv extracts variables from `docker-machine env` output:
//
//	export DOCKER_HOST="tcp://203.0.113.7:2376"
//
// Other lines (comments, usage hints) are ignored. Surrounding spaces and
// double quotes are trimmed from values.
func ParseEnv(text string) map[string]string {
	env := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "export ")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		env[key] = strings.Trim(value, ` "`)
	}
	return env
}

// MergeEnv adds vars to the environment passed to every later task.
func (c *Controller) MergeEnv(vars map[string]string) {
	if len(vars) == 0 {
		return
	}

	c.mu.Lock()
	maps.Copy(c.env, vars)
	c.broadcastLocked()
	c.mu.Unlock()

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	c.logger.Debug("env_merged", "keys", keys)
}

// EnvCapture returns a handler that merges `export` lines from a task's
// output into the shared environment.
func (c *Controller) EnvCapture() task.OutputHandler {
	return task.HandlerFunc(func(text string) {
		c.MergeEnv(ParseEnv(text))
	})
}

// IPCapture returns a handler that stores the trimmed output as the
// machine's IP address.
func (c *Controller) IPCapture() task.OutputHandler {
	return task.HandlerFunc(func(text string) {
		c.setFact(&c.ip, strings.TrimSpace(text))
	})
}

// StatusCapture returns a handler that stores the trimmed output as the
// machine status (Running, Stopped, ...).
func (c *Controller) StatusCapture() task.OutputHandler {
	return task.HandlerFunc(func(text string) {
		c.setFact(&c.status, strings.TrimSpace(text))
	})
}

// LogsCapture returns a handler that stores the output as the latest
// service logs.
func (c *Controller) LogsCapture() task.OutputHandler {
	return task.HandlerFunc(func(text string) {
		c.setFact(&c.logs, text)
	})
}

func (c *Controller) setFact(field *string, value string) {
	c.mu.Lock()
	*field = value
	c.broadcastLocked()
	c.mu.Unlock()
}
