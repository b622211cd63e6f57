package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// App is the desktop shell's lifecycle owner. It starts the backend
// supervisor once and keeps running until its context is cancelled.
type App struct {
	config     Config
	supervisor *Supervisor
	notifier   *Notifier
	webhookWg  sync.WaitGroup // Track pending webhook goroutines
}

// NewApp wires the supervisor and its collaborators from cfg
func NewApp(cfg Config) *App {
	app := &App{
		config:     cfg,
		supervisor: NewSupervisor(cfg.Backend, NewResourceResolver(cfg.ResourceDir)),
		notifier:   NewNotifier(cfg.Backend.ExitWebhookURL),
	}
	app.supervisor.SetExitCallback(app.handleBackendExit)
	return app
}

// Supervisor returns the backend supervisor
func (a *App) Supervisor() *Supervisor {
	return a.supervisor
}

// Run starts the backend and blocks until ctx is cancelled. It returns an
// error if startup fails, including when the backend cannot be located or
// spawned. A backend that exits on its own leaves the host running.
func (a *App) Run(ctx context.Context) error {
	lock, err := AcquireInstanceLock(a.config.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to release instance lock: %v\n", err)
		}
	}()

	var server *Server
	serverErrChan := make(chan error, 1)
	if a.config.Status.Port > 0 {
		server = NewServer(a.supervisor, a.config.Status)
		if isPortInUse(server.Addr()) {
			fmt.Fprintf(os.Stderr, "Warning: status port %d is already in use, status server disabled\n", a.config.Status.Port)
			server = nil
		} else {
			go func() {
				if err := server.Start(); err != nil {
					serverErrChan <- err
				}
			}()
		}
	}

	var heartbeat *Heartbeat
	if a.config.Status.Heartbeat != "" {
		heartbeat, err = StartHeartbeat(a.config.Status.Heartbeat, a.supervisor)
		if err != nil {
			a.shutdownServer(server)
			return err
		}
	}

	supervisorCtx, cancelSupervisor := context.WithCancel(ctx)
	defer cancelSupervisor()

	if err := a.supervisor.Start(supervisorCtx); err != nil {
		a.stopHeartbeat(heartbeat)
		a.shutdownServer(server)
		return err
	}

	var runErr error
	supervisorDone := a.supervisor.Done()
	for running := true; running; {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			running = false
		case <-supervisorDone:
			if err := a.supervisor.Err(); err != nil {
				runErr = err
				running = false
			}
			// The backend is gone; the shell keeps running without it
			supervisorDone = nil
		case err := <-serverErrChan:
			fmt.Fprintf(os.Stderr, "Status server error: %v\n", err)
		}
	}

	cancelSupervisor()
	a.supervisor.Wait()
	a.stopHeartbeat(heartbeat)
	a.shutdownServer(server)
	a.waitForWebhooks(5 * time.Second)

	return runErr
}

// handleBackendExit alerts the webhook when the backend ends without being asked to
func (a *App) handleBackendExit(info ExitInfo) {
	if info.Stopped || !a.notifier.Enabled() {
		return
	}

	payload := exitPayload(info, time.Now())
	a.webhookWg.Add(1)
	go func() {
		defer a.webhookWg.Done()
		if err := a.notifier.NotifyExit(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to send exit webhook: %v\n", err)
		} else {
			fmt.Printf("Exit webhook sent (exit code: %d)\n", info.ExitCode)
		}
	}()
}

func (a *App) waitForWebhooks(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		a.webhookWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		fmt.Fprintf(os.Stderr, "Warning: Timed out waiting for pending webhooks\n")
	}
}

func (a *App) stopHeartbeat(h *Heartbeat) {
	if h != nil {
		h.Stop()
	}
}

func (a *App) shutdownServer(server *Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: status server shutdown: %v\n", err)
	}
}
