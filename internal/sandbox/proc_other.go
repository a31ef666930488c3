//go:build !unix

package sandbox

import "os/exec"

func isolateProcess(cmd *exec.Cmd) {}

// KillGroup kills the command's process.
func KillGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
