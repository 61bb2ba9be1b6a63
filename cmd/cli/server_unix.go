//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the server in its own process group so it outlives the CLI
// and ignores the terminal's Ctrl-C.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
