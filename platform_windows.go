//go:build windows

package main

import (
	"fmt"
	"os/exec"
	"time"

	winjob "github.com/kolesnikovae/go-winjob"
)

// platformStartProcess starts the backend inside a job object that kills the
// whole process tree when the handle is closed, including when the launcher dies.
func platformStartProcess(s *Supervisor, cmd *exec.Cmd) error {
	job, err := winjob.Create("backend-launcher-"+s.instance,
		winjob.WithKillOnJobClose(),
		winjob.WithBreakawayOK(),
	)
	if err != nil {
		return fmt.Errorf("create job object: %w", err)
	}

	if err := winjob.StartInJobObject(cmd, job); err != nil {
		_ = job.Close()
		return fmt.Errorf("start in job: %w", err)
	}

	s.winJob = job
	return nil
}

func platformCleanup(s *Supervisor) {
	if job, ok := s.winJob.(*winjob.JobObject); ok && job != nil {
		_ = job.Close()
		s.winJob = nil
	}
}

// gracefulStop terminates the backend. Hidden-console processes cannot receive
// CTRL_BREAK, so there is no graceful phase; closing the job object in
// platformCleanup takes care of any children. It returns once the process has been reaped.
func gracefulStop(cmd *exec.Cmd, exited <-chan struct{}, _ time.Duration) error {
	if cmd.Process == nil {
		return fmt.Errorf("no process to stop")
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Kill(); err != nil {
		// Kill fails when the process is already gone; job closure covers the rest
		fmt.Printf("[Supervisor] TerminateProcess for backend (PID: %d) failed: %v\n", pid, err)
	}
	<-exited
	fmt.Printf("[Supervisor] Backend (PID: %d) terminated\n", pid)
	return nil
}
