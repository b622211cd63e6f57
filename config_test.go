package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func createTempYAML(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "launcher.yaml")

	if err := os.WriteFile(yamlPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp YAML: %v", err)
	}

	return yamlPath
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}

	b := config.Backend
	if b.Dir != "backend" {
		t.Errorf("Expected default backend dir 'backend', got: %s", b.Dir)
	}
	if b.Command != "node server.js" {
		t.Errorf("Expected default command 'node server.js', got: %s", b.Command)
	}
	if b.StartupDelay != time.Second {
		t.Errorf("Expected default startup delay 1s, got: %v", b.StartupDelay)
	}
	if b.ReadyDelay != 2*time.Second {
		t.Errorf("Expected default ready delay 2s, got: %v", b.ReadyDelay)
	}
	if b.HealthCheckEnabled() {
		t.Error("Expected health check to be disabled by default")
	}
	if config.Status.Port != 0 {
		t.Errorf("Expected status server disabled by default, got port %d", config.Status.Port)
	}
	if config.Status.Host != "127.0.0.1" {
		t.Errorf("Expected default status host 127.0.0.1, got: %s", config.Status.Host)
	}
	if !strings.HasSuffix(config.LockFile, "backend-launcher.lock") {
		t.Errorf("Expected default lock file, got: %s", config.LockFile)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `resource_dir: /opt/app/resources
lock_file: /tmp/app.lock
backend:
  dir: server
  command: node --max-old-space-size=512 index.js
  env:
    PORT: "5001"
  startup_delay: 250ms
  ready_delay: 3s
  health_url: http://127.0.0.1:5001/api/health
  health_retries: 20
  health_interval: 1s
  stop_timeout: 10s
  exit_webhook_url: https://example.com/hook
status:
  host: 0.0.0.0
  port: 4322
  authorization: user:pass
  heartbeat: "@every 30s"
`
	config, err := LoadConfig(createTempYAML(t, content))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.ResourceDir != "/opt/app/resources" {
		t.Errorf("Expected resource dir /opt/app/resources, got: %s", config.ResourceDir)
	}
	if config.LockFile != "/tmp/app.lock" {
		t.Errorf("Expected lock file /tmp/app.lock, got: %s", config.LockFile)
	}

	b := config.Backend
	if b.Dir != "server" {
		t.Errorf("Expected backend dir server, got: %s", b.Dir)
	}
	if b.Command != "node --max-old-space-size=512 index.js" {
		t.Errorf("Unexpected command: %s", b.Command)
	}
	if b.Env["PORT"] != "5001" {
		t.Errorf("Expected env PORT=5001, got: %v", b.Env)
	}
	if b.StartupDelay != 250*time.Millisecond {
		t.Errorf("Expected startup delay 250ms, got: %v", b.StartupDelay)
	}
	if b.ReadyDelay != 3*time.Second {
		t.Errorf("Expected ready delay 3s, got: %v", b.ReadyDelay)
	}
	if !b.HealthCheckEnabled() || b.HealthRetries != 20 || b.HealthInterval != time.Second {
		t.Errorf("Unexpected health settings: %+v", b)
	}
	if b.StopTimeout != 10*time.Second {
		t.Errorf("Expected stop timeout 10s, got: %v", b.StopTimeout)
	}
	if b.ExitWebhookURL != "https://example.com/hook" {
		t.Errorf("Unexpected webhook URL: %s", b.ExitWebhookURL)
	}

	s := config.Status
	if s.Host != "0.0.0.0" || s.Port != 4322 || s.Authorization != "user:pass" || s.Heartbeat != "@every 30s" {
		t.Errorf("Unexpected status config: %+v", s)
	}
}

func TestLoadConfig_PartialFileGetsDefaults(t *testing.T) {
	content := `backend:
  command: python3 app.py
`
	config, err := LoadConfig(createTempYAML(t, content))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Backend.Command != "python3 app.py" {
		t.Errorf("Expected command override, got: %s", config.Backend.Command)
	}
	if config.Backend.Dir != "backend" {
		t.Errorf("Expected default dir, got: %s", config.Backend.Dir)
	}
	if config.Backend.StartupDelay != time.Second || config.Backend.ReadyDelay != 2*time.Second {
		t.Errorf("Expected default delays, got: %v / %v", config.Backend.StartupDelay, config.Backend.ReadyDelay)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(createTempYAML(t, "backend: [unclosed"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"negative delay", "backend:\n  ready_delay: -1s\n", "durations must not be negative"},
		{"negative retries", "backend:\n  health_retries: -2\n", "health_retries"},
		{"absolute dir", "backend:\n  dir: /srv/backend\n", "must be relative"},
		{"bad port", "status:\n  port: 70000\n", "out of range"},
		{"parent dir", "backend:\n  dir: ../..\n", "must stay inside"},
		{"escaping dir", "backend:\n  dir: backend/../../etc\n", "must stay inside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "absolute dir" && runtime.GOOS == "windows" {
				t.Skip("/srv/backend is not absolute on Windows")
			}
			_, err := LoadConfig(createTempYAML(t, tt.content))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_ExplicitZeroDelays(t *testing.T) {
	content := `backend:
  startup_delay: 0s
  ready_delay: 0s
`
	config, err := LoadConfig(createTempYAML(t, content))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Backend.StartupDelay != 0 || config.Backend.ReadyDelay != 0 {
		t.Errorf("Expected explicit zero delays to be kept, got %v / %v",
			config.Backend.StartupDelay, config.Backend.ReadyDelay)
	}
	if config.Backend.StopTimeout != defaultStopTimeout {
		t.Errorf("Expected omitted stop timeout to keep default, got %v", config.Backend.StopTimeout)
	}
}

func TestLoadConfig_NestedBackendDir(t *testing.T) {
	config, err := LoadConfig(createTempYAML(t, "backend:\n  dir: app/../server\n"))
	if err != nil {
		t.Fatalf("Expected dir inside the resource directory to be accepted, got: %v", err)
	}
	if config.Backend.Dir != "app/../server" {
		t.Errorf("Unexpected dir: %s", config.Backend.Dir)
	}
}

func TestLoadConfig_AllowedOrigins(t *testing.T) {
	content := `status:
  port: 4322
  allowed_origins:
    - https://app.example.com
`
	config, err := LoadConfig(createTempYAML(t, content))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if len(config.Status.AllowedOrigins) != 1 || config.Status.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("Unexpected allowed origins: %v", config.Status.AllowedOrigins)
	}
	if config.Status.Host != defaultStatusHost {
		t.Errorf("Expected default host, got %s", config.Status.Host)
	}
}
