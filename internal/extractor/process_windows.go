//go:build windows

package extractor

import (
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminate kills right away: there is no SIGTERM on windows.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func killGroup(cmd *exec.Cmd) {}
