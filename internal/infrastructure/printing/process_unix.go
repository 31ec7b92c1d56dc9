//go:build !windows

package printing

import (
	"os/exec"
	"syscall"
)

// startInOwnGroup makes the child the leader of a new process group so
// killProcessGroup also reaches any helper processes it spawns.
func startInOwnGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the whole process group (negative PID)
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
