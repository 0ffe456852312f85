// Package process provides the low-level pieces for running external commands:
// building the command, reading its exit status and killing its process group.
package process

import (
	"errors"
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

// Spec describes one external command invocation.
type Spec struct {
	// Bin is the binary name or path (looked up in PATH).
	Bin string

	// Args are the arguments after the binary, in order.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is the complete process environment. A nil map inherits the
	// parent environment; an empty non-nil map starts the process with none.
	Env map[string]string
}

// Argv returns the full argument vector: [Bin, Args...].
func (s Spec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.Bin)
	return append(argv, s.Args...)
}

// String returns the command line as a single space-separated string.
func (s Spec) String() string {
	return strings.Join(s.Argv(), " ")
}

// Command returns a ready-to-start command for spec.
// The command is placed in its own process group so that KillGroup also
// reaches any children it spawns. The command is NOT started.
func Command(spec Spec) *exec.Cmd {
	cmd := exec.Command(spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = EnvList(spec.Env)
	}
	setProcessGroup(cmd)
	return cmd
}

// EnvList converts an environment map to sorted KEY=VALUE entries.
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// EnvMap converts KEY=VALUE entries (as returned by os.Environ) to a map.
// Entries without '=' are skipped.
func EnvMap(list []string) map[string]string {
	env := make(map[string]string, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// ExitCode extracts the exit code from a Wait() error.
// A process killed by a signal reports 128 + signal number.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
