//go:build windows

package procrun

import "os/exec"

type winSignal int

const (
	stopSignal winSignal = iota
	killSignal
)

// configureProcessGroup is a no-op on Windows; exec.Cmd has no POSIX
// process-group concept here, and CollectOutput/RunWithDeadline fall
// back to killing the immediate process only.
func configureProcessGroup(cmd *exec.Cmd) {}

func signalProcessGroup(cmd *exec.Cmd, _ winSignal) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
