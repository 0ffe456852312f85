//go:build windows

package process

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

// KillGroup kills the command's process. Windows has no process groups in
// the POSIX sense, so children are not reached.
func KillGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
