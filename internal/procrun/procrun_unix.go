//go:build !windows

package procrun

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	stopSignal = unix.SIGTERM
	killSignal = unix.SIGKILL
)

// configureProcessGroup places the child in its own process group so a
// later signal can target the whole group (the child plus anything it
// spawned), not just the immediate process.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalProcessGroup sends sig to the negative PID, which POSIX
// interprets as "every process in this process group".
func signalProcessGroup(cmd *exec.Cmd, sig unix.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, sig)
}
