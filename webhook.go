package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExitPayload represents the webhook payload sent when the backend exits unexpectedly
type ExitPayload struct {
	Instance        string    `json:"instance"`
	PID             int       `json:"pid"`
	ExitCode        int       `json:"exit_code"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier handles webhook notifications
type Notifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewNotifier creates a new webhook notifier. An empty URL disables it.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		enabled:    webhookURL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// NotifyExit sends an exit notification to the webhook
func (n *Notifier) NotifyExit(payload ExitPayload) error {
	if !n.enabled {
		return nil
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "backend-launcher/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}

// exitPayload converts supervisor exit information into the webhook payload
func exitPayload(info ExitInfo, now time.Time) ExitPayload {
	payload := ExitPayload{
		Instance:        info.Instance,
		PID:             info.PID,
		ExitCode:        info.ExitCode,
		DurationSeconds: info.Duration.Seconds(),
		Timestamp:       now,
	}
	if info.Err != nil {
		payload.ErrorMessage = info.Err.Error()
	}
	return payload
}
