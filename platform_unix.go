//go:build !windows

package main

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// platformStartProcess starts the backend in a new process group so the
// whole tree (interpreter plus anything it forks) can be signalled at once.
func platformStartProcess(s *Supervisor, cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd.Start()
}

func platformCleanup(s *Supervisor) {}

// gracefulStop sends SIGTERM to the backend's process group, waits for the
// timeout, then sends SIGKILL. It returns once the process has been reaped.
func gracefulStop(cmd *exec.Cmd, exited <-chan struct{}, timeout time.Duration) error {
	if cmd.Process == nil {
		return fmt.Errorf("no process to stop")
	}

	pid := cmd.Process.Pid

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			<-exited
			return nil
		}
		_ = cmd.Process.Kill()
		<-exited
		return fmt.Errorf("failed to signal process group: %w", err)
	}

	select {
	case <-exited:
		fmt.Printf("[Supervisor] Backend (PID: %d) stopped gracefully\n", pid)
		return nil
	case <-time.After(timeout):
		fmt.Printf("[Supervisor] Backend (PID: %d) did not stop gracefully after %v, forcing termination\n",
			pid, timeout)
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			_ = cmd.Process.Kill()
		}
		<-exited
		return nil
	}
}
