package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	errNotReady    = errors.New("backend did not report healthy")
	errChildExited = errors.New("backend exited before becoming ready")
)

// waitReady blocks until the backend is considered ready. Without a health URL
// this is a fixed delay and readiness is assumed. With one, the URL is polled
// up to HealthRetries times and errNotReady is returned if it never answers 2xx.
func (s *Supervisor) waitReady(ctx context.Context, exited <-chan struct{}) error {
	if !s.Config.HealthCheckEnabled() {
		timer := time.NewTimer(s.Config.ReadyDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-exited:
			return errChildExited
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Child exit cancels the polling with errChildExited as the cause,
	// including while backoff is sleeping between attempts
	pollCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-exited:
			cancel(errChildExited)
		case <-pollCtx.Done():
		}
	}()

	retries := max(s.Config.HealthRetries, 1)
	attempt := 0
	check := func() (struct{}, error) {
		select {
		case <-exited:
			return struct{}{}, backoff.Permanent(errChildExited)
		default:
		}

		attempt++
		err := s.checkHealth(pollCtx)
		if err != nil && pollCtx.Err() == nil {
			fmt.Printf("[Supervisor] Health check %d/%d failed: %v\n", attempt, retries, err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(pollCtx, check,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.Config.HealthInterval)),
		backoff.WithMaxTries(uint(retries)),
		backoff.WithMaxElapsedTime(0),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errChildExited) || errors.Is(context.Cause(pollCtx), errChildExited):
		return errChildExited
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return errNotReady
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Config.HealthURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
