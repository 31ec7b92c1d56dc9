//go:build windows

package printing

import (
	"os/exec"
	"strconv"
)

func startInOwnGroup(cmd *exec.Cmd) {}

// killProcessGroup kills a process tree using taskkill
func killProcessGroup(pid int) {
	_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
