package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const readyMessage = "Backend server started successfully"

var (
	// ErrSpawn is returned when the operating system rejects the backend launch
	ErrSpawn = errors.New("failed to start backend server")
	// ErrAlreadyStarted is returned by Start when the supervisor has already run
	ErrAlreadyStarted = errors.New("backend supervisor already started")
)

// ExitInfo describes how the backend process ended
type ExitInfo struct {
	Instance string
	PID      int
	ExitCode int
	Err      error
	Duration time.Duration
	Stopped  bool // Stopped by the host during shutdown
}

// ExitCallback is called once after the backend process has been waited on
type ExitCallback func(info ExitInfo)

// Status represents supervisor status information
type Status struct {
	Instance   string        `json:"instance"`
	State      State         `json:"state"`
	PID        int           `json:"pid"`
	Ready      bool          `json:"ready"`
	Uptime     time.Duration `json:"-"`
	UptimeSecs float64       `json:"uptime"`
	BackendDir string        `json:"backendDir,omitempty"`
	ExitCode   int           `json:"exitCode"`
	Error      string        `json:"error,omitempty"`
}

// Supervisor launches one backend process and waits on it for the lifetime of the host.
// It never restarts the backend.
type Supervisor struct {
	Config     BackendConfig
	resolveDir ResourceResolver
	instance   string
	events     *Broadcaster
	httpClient *http.Client

	cmd        *exec.Cmd
	winJob     any
	state      State
	pid        int
	backendDir string
	startTime  time.Time
	ready      bool
	exitCode   int
	err        error
	started    bool

	exitCallback ExitCallback

	done chan struct{}
	mu   sync.RWMutex
}

// NewSupervisor creates a supervisor for the backend described by cfg
func NewSupervisor(cfg BackendConfig, resolveDir ResourceResolver) *Supervisor {
	return &Supervisor{
		Config:     cfg,
		resolveDir: resolveDir,
		instance:   uuid.NewString(),
		events:     NewBroadcaster(),
		httpClient: &http.Client{Timeout: 2 * time.Second},
		state:      StateNotStarted,
		done:       make(chan struct{}),
	}
}

// SetExitCallback sets the callback invoked when the backend process ends
func (s *Supervisor) SetExitCallback(callback ExitCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitCallback = callback
}

// Start schedules the launch on a background goroutine and returns immediately.
// Cancelling ctx stops the backend (or prevents the launch if it has not happened yet).
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	go s.run(ctx)
	return nil
}

// Done is closed when the supervisor goroutine has finished
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the supervisor goroutine has finished and returns its setup error, if any.
// A backend that exits on its own is not an error.
func (s *Supervisor) Wait() error {
	<-s.done
	return s.Err()
}

// Err returns the setup error that ended the supervisor, if any
func (s *Supervisor) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Instance returns the unique ID of this launch
func (s *Supervisor) Instance() string {
	return s.instance
}

// Status returns the current supervisor status
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if s.state == StateWaitingReady || s.state == StateRunning {
		uptime = time.Since(s.startTime)
	}

	status := Status{
		Instance:   s.instance,
		State:      s.state,
		PID:        s.pid,
		Ready:      s.ready,
		Uptime:     uptime,
		UptimeSecs: uptime.Seconds(),
		BackendDir: s.backendDir,
		ExitCode:   s.exitCode,
	}
	if s.err != nil {
		status.Error = s.err.Error()
	}
	return status
}

// Subscribe subscribes to lifecycle events
func (s *Supervisor) Subscribe() chan Event {
	return s.events.Subscribe()
}

// Unsubscribe unsubscribes from lifecycle events
func (s *Supervisor) Unsubscribe(ch chan Event) {
	s.events.Unsubscribe(ch)
}

// PublishHeartbeat broadcasts the current status as a heartbeat event
func (s *Supervisor) PublishHeartbeat() {
	s.mu.RLock()
	ev := s.eventLocked(EventHeartbeat)
	s.mu.RUnlock()
	s.events.Broadcast(ev)
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	// Wait a bit for the host to finish initializing
	s.setState(StateWarmup, nil)
	if !sleepContext(ctx, s.Config.StartupDelay) {
		fmt.Println("[Supervisor] Shutdown requested before backend launch")
		s.setState(StateExited, nil)
		return
	}

	resourceDir, err := s.resolveDir()
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrResourceDir, err))
		return
	}
	backendDir := filepath.Join(resourceDir, s.Config.Dir)

	s.setState(StateSpawning, func() {
		s.backendDir = backendDir
	})

	cmd, err := s.buildCommand(backendDir)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrSpawn, err))
		return
	}

	if err := platformStartProcess(s, cmd); err != nil {
		platformCleanup(s)
		s.fail(fmt.Errorf("%w: %w", ErrSpawn, err))
		return
	}

	startTime := time.Now()
	pid := cmd.Process.Pid

	// The handle is always waited on, whatever happens below
	var waitErr error
	exited := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	s.setState(StateWaitingReady, func() {
		s.cmd = cmd
		s.pid = pid
		s.startTime = startTime
	})
	fmt.Printf("[Supervisor] Spawned backend '%s' (PID: %d) in %s\n", s.Config.Command, pid, backendDir)

	stopped := false
	readyErr := s.waitReady(ctx, exited)
	switch {
	case readyErr == nil || errors.Is(readyErr, errNotReady):
		ready := readyErr == nil
		if ready {
			fmt.Printf("[Supervisor] %s\n", readyMessage)
		} else {
			fmt.Fprintf(os.Stderr, "[Supervisor] Backend did not pass health check after %d attempts, continuing without confirmation\n",
				s.Config.HealthRetries)
		}
		s.setState(StateRunning, func() {
			s.ready = ready
		})

		select {
		case <-exited:
		case <-ctx.Done():
			stopped = true
			s.stopProcess(cmd, exited)
		}
	case errors.Is(readyErr, errChildExited):
		// Exit is recorded below
	default:
		stopped = true
		s.stopProcess(cmd, exited)
	}

	duration := time.Since(startTime)
	exitCode := exitCodeOf(waitErr)
	platformCleanup(s)

	s.setState(StateExited, func() {
		s.cmd = nil
		s.pid = 0
		s.exitCode = exitCode
	})
	fmt.Printf("[Supervisor] Backend (PID: %d) exited with code %d (duration: %v)\n",
		pid, exitCode, duration.Round(time.Millisecond))

	s.mu.RLock()
	callback := s.exitCallback
	s.mu.RUnlock()

	if callback != nil {
		callback(ExitInfo{
			Instance: s.instance,
			PID:      pid,
			ExitCode: exitCode,
			Err:      waitErr,
			Duration: duration,
			Stopped:  stopped,
		})
	}
}

// buildCommand prepares the backend invocation. Stdout and Stderr are left nil
// so both streams are connected to the null device.
func (s *Supervisor) buildCommand(backendDir string) (*exec.Cmd, error) {
	parts, err := shlex.Split(s.Config.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	configureCmdWindows(cmd)
	cmd.Dir = backendDir

	env, err := buildEnv(backendDir, s.Config.Env)
	if err != nil {
		return nil, err
	}
	cmd.Env = env

	return cmd, nil
}

// buildEnv merges the OS environment, the backend's .env file and configured
// variables, later sources taking precedence.
func buildEnv(backendDir string, overrides map[string]string) ([]string, error) {
	envMap := make(map[string]string)

	for _, env := range os.Environ() {
		if idx := strings.Index(env, "="); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	dotenvPath := filepath.Join(backendDir, ".env")
	if _, err := os.Stat(dotenvPath); err == nil {
		dotenvVars, err := godotenv.Read(dotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse .env file: %w", err)
		}
		maps.Copy(envMap, dotenvVars)
		fmt.Printf("[Supervisor] Loaded %d environment variables from %s\n", len(dotenvVars), dotenvPath)
	}

	maps.Copy(envMap, overrides)

	env := make([]string, 0, len(envMap))
	for _, k := range slices.Sorted(maps.Keys(envMap)) {
		env = append(env, k+"="+envMap[k])
	}
	return env, nil
}

func (s *Supervisor) stopProcess(cmd *exec.Cmd, exited <-chan struct{}) {
	fmt.Printf("[Supervisor] Stopping backend (PID: %d)\n", cmd.Process.Pid)
	if err := gracefulStop(cmd, exited, s.Config.StopTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "[Supervisor] Failed to stop backend cleanly: %v\n", err)
	}
}

func (s *Supervisor) fail(err error) {
	s.setState(StateFailed, func() {
		s.err = err
	})
	fmt.Fprintf(os.Stderr, "[Supervisor] %v\n", err)
}

// setState applies mutate and the transition under the lock, then broadcasts it
func (s *Supervisor) setState(state State, mutate func()) {
	s.mu.Lock()
	if mutate != nil {
		mutate()
	}
	s.state = state
	ev := s.eventLocked(EventState)
	s.mu.Unlock()

	s.events.Broadcast(ev)
}

func (s *Supervisor) eventLocked(kind string) Event {
	ev := Event{
		Instance: s.instance,
		Kind:     kind,
		State:    s.state,
		PID:      s.pid,
		Ready:    s.ready,
		ExitCode: s.exitCode,
		Time:     time.Now(),
	}
	if s.err != nil {
		ev.Error = s.err.Error()
	}
	return ev
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode()
	}
	return -1 // Unknown error
}

// sleepContext sleeps for d and reports false if ctx was cancelled first
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
