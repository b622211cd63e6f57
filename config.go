package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// Configuration Structures
// ============================================================================

const (
	defaultBackendDir     = "backend"
	defaultBackendCommand = "node server.js"
	defaultStartupDelay   = 1 * time.Second
	defaultReadyDelay     = 2 * time.Second
	defaultHealthRetries  = 10
	defaultHealthInterval = 500 * time.Millisecond
	defaultStopTimeout    = 5 * time.Second
	defaultStatusHost     = "127.0.0.1"
	defaultLockName       = "backend-launcher.lock"
)

// Config is the root of launcher.yaml
type Config struct {
	ResourceDir string        `yaml:"resource_dir,omitempty"` // Overrides platform resolution
	LockFile    string        `yaml:"lock_file,omitempty"`
	Backend     BackendConfig `yaml:"backend"`
	Status      StatusConfig  `yaml:"status"`
}

// BackendConfig describes how the bundled backend is launched
type BackendConfig struct {
	Dir     string            `yaml:"dir,omitempty"`     // Relative to the resource directory
	Command string            `yaml:"command,omitempty"` // Interpreter and entry point
	Env     map[string]string `yaml:"env,omitempty"`

	// Omitted delays take the defaults; an explicit 0s skips the wait
	StartupDelay time.Duration `yaml:"startup_delay,omitempty"`
	ReadyDelay   time.Duration `yaml:"ready_delay,omitempty"`

	// Health polling replaces the blind ready delay when HealthURL is set
	HealthURL      string        `yaml:"health_url,omitempty"`
	HealthRetries  int           `yaml:"health_retries,omitempty"` // 0 = default
	HealthInterval time.Duration `yaml:"health_interval,omitempty"`

	StopTimeout    time.Duration `yaml:"stop_timeout,omitempty"`
	ExitWebhookURL string        `yaml:"exit_webhook_url,omitempty"`
}

// StatusConfig configures the local status server. Port 0 disables it.
type StatusConfig struct {
	Host          string `yaml:"host,omitempty"`
	Port          int    `yaml:"port,omitempty"`
	Authorization string `yaml:"authorization,omitempty"` // BasicAuth credentials in format "username:password"
	Heartbeat     string `yaml:"heartbeat,omitempty"`     // Cron schedule, empty = no heartbeat

	// Websocket origins accepted in addition to loopback and the desktop webview
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// HealthCheckEnabled reports whether readiness is verified over HTTP
func (bc *BackendConfig) HealthCheckEnabled() bool {
	return bc.HealthURL != ""
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() Config {
	return Config{
		LockFile: filepath.Join(os.TempDir(), defaultLockName),
		Backend: BackendConfig{
			Dir:            defaultBackendDir,
			Command:        defaultBackendCommand,
			StartupDelay:   defaultStartupDelay,
			ReadyDelay:     defaultReadyDelay,
			HealthRetries:  defaultHealthRetries,
			HealthInterval: defaultHealthInterval,
			StopTimeout:    defaultStopTimeout,
		},
		Status: StatusConfig{
			Host: defaultStatusHost,
		},
	}
}

// LoadConfig loads the launcher configuration from path.
// A missing file is not an error and yields the defaults. The file is decoded
// over the defaults, so fields it leaves out keep them while an explicit
// "0s" delay disables that delay.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults restores settings that cannot meaningfully be empty
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.LockFile == "" {
		c.LockFile = def.LockFile
	}
	if c.Backend.Dir == "" {
		c.Backend.Dir = def.Backend.Dir
	}
	if c.Backend.Command == "" {
		c.Backend.Command = def.Backend.Command
	}
	if c.Backend.HealthRetries == 0 {
		c.Backend.HealthRetries = def.Backend.HealthRetries
	}
	if c.Status.Host == "" {
		c.Status.Host = def.Status.Host
	}
}

func (c *Config) validate() error {
	b := c.Backend
	if b.StartupDelay < 0 || b.ReadyDelay < 0 || b.HealthInterval < 0 || b.StopTimeout < 0 {
		return fmt.Errorf("invalid config: durations must not be negative")
	}
	if b.HealthRetries < 0 {
		return fmt.Errorf("invalid config: health_retries must not be negative")
	}
	if filepath.IsAbs(b.Dir) {
		return fmt.Errorf("invalid config: backend dir %q must be relative to the resource directory", b.Dir)
	}
	if clean := filepath.Clean(b.Dir); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid config: backend dir %q must stay inside the resource directory", b.Dir)
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("invalid config: status port %d out of range", c.Status.Port)
	}
	return nil
}
