//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// configureCmdWindows keeps the backend from opening a console window next to the desktop shell
func configureCmdWindows(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
