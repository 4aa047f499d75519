//go:build windows

package cli

import (
	"os"
	"os/exec"
)

// detach is a no-op on Windows. Run keypanel under a service wrapper for
// unattended deployments.
func detach(cmd *exec.Cmd) {}

// isProcessRunning relies on FindProcess opening a handle, which fails for
// processes that have exited.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}

// stopProcess kills the process. Windows has no SIGTERM, so in-flight
// requests are not drained.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
