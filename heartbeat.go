package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Heartbeat periodically publishes the supervisor status to event subscribers
type Heartbeat struct {
	scheduler *cron.Cron
}

// StartHeartbeat schedules sup.PublishHeartbeat according to a cron schedule
// such as "@every 30s" or "*/1 * * * *".
func StartHeartbeat(schedule string, sup *Supervisor) (*Heartbeat, error) {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, sup.PublishHeartbeat); err != nil {
		return nil, fmt.Errorf("failed to parse heartbeat schedule %q: %w", schedule, err)
	}
	scheduler.Start()

	return &Heartbeat{scheduler: scheduler}, nil
}

// Stop stops the scheduler and waits for a running tick to finish
func (h *Heartbeat) Stop() {
	ctx := h.scheduler.Stop()
	<-ctx.Done()
}
