package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func runGoBuild(pkg, out string) error {
	cmd := exec.Command("go", "build", "-o", out, pkg)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("go build failed: %w\n%s", err, string(b))
	}
	return nil
}

// newResourceDir creates a resource directory containing an empty backend subdirectory
func newResourceDir(t *testing.T) (resourceDir, backendDir string) {
	t.Helper()
	resourceDir = t.TempDir()
	backendDir = filepath.Join(resourceDir, defaultBackendDir)
	if err := os.MkdirAll(backendDir, 0755); err != nil {
		t.Fatalf("Failed to create backend dir: %v", err)
	}
	return resourceDir, backendDir
}

// fastBackendConfig returns a backend config with short delays suitable for tests
func fastBackendConfig(command string) BackendConfig {
	cfg := DefaultConfig().Backend
	cfg.Command = command
	cfg.StartupDelay = 10 * time.Millisecond
	cfg.ReadyDelay = 20 * time.Millisecond
	cfg.HealthInterval = 20 * time.Millisecond
	cfg.StopTimeout = 500 * time.Millisecond
	return cfg
}

func staticResolver(dir string) ResourceResolver {
	return func() (string, error) {
		return dir, nil
	}
}

// drainEvents returns every event buffered in ch without blocking
func drainEvents(ch chan Event) []Event {
	var events []Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func findState(events []Event, state State) (Event, bool) {
	for _, ev := range events {
		if ev.Kind == EventState && ev.State == state {
			return ev, true
		}
	}
	return Event{}, false
}

func waitDone(t *testing.T, sup *Supervisor, timeout time.Duration) {
	t.Helper()
	select {
	case <-sup.Done():
	case <-time.After(timeout):
		t.Fatalf("supervisor did not finish within %v (state: %s)", timeout, sup.Status().State)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// captureOutput redirects the process stdout and stderr into a buffer until
// the returned function is called, which restores them and returns the text.
func captureOutput(t *testing.T) func() string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	origStdout, origStderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = w, w

	var buf bytes.Buffer
	copied := make(chan struct{})
	go func() {
		io.Copy(&buf, r)
		close(copied)
	}()

	restored := false
	restore := func() string {
		if !restored {
			restored = true
			os.Stdout, os.Stderr = origStdout, origStderr
			w.Close()
			<-copied
			r.Close()
		}
		return buf.String()
	}
	t.Cleanup(func() { restore() })
	return restore
}
