package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"licensepay.backend/internal/usecases"
	"licensepay.backend/pkg/logger"
)

// WaitlistProcessingJob dispatches exactly one READY_FOR_EMAIL entry per
// tick through LicenseInventory.ProcessNextWaitlistEntry, pacing license
// delivery instead of bursting the whole backlog at once.
type WaitlistProcessingJob struct {
	inventory *usecases.LicenseInventory
	interval  time.Duration
	stop      chan struct{}
}

// NewWaitlistProcessingJob builds a WaitlistProcessingJob.
func NewWaitlistProcessingJob(inventory *usecases.LicenseInventory, interval time.Duration) *WaitlistProcessingJob {
	return &WaitlistProcessingJob{inventory: inventory, interval: interval, stop: make(chan struct{})}
}

// Start runs the dispatch loop until ctx is cancelled or Stop is called.
func (j *WaitlistProcessingJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			if _, err := j.inventory.ProcessNextWaitlistEntry(ctx); err != nil {
				logger.Error(ctx, "waitlist processing: dispatch failed", zap.Error(err))
			}
		}
	}
}

// Stop halts the loop. Safe to call once.
func (j *WaitlistProcessingJob) Stop() {
	close(j.stop)
}
