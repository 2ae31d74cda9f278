// Package jobs hosts the three background tickers this core runs:
// waitlist staging, waitlist email dispatch, and the reconciliation sweep.
// Each follows the same cancellable Start(ctx)/Stop() shape: a
// time.Ticker-driven loop that a caller starts once at process boot and
// stops once at shutdown.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/usecases"
	"licensepay.backend/pkg/logger"
)

// WaitlistStagingJob pairs newly-available licenses against PENDING
// waitlist entries for every product that currently has at least one
// PENDING entry.
type WaitlistStagingJob struct {
	inventory    *usecases.LicenseInventory
	waitlistRepo repositories.WaitlistRepository
	interval     time.Duration
	stop         chan struct{}
}

// NewWaitlistStagingJob builds a WaitlistStagingJob.
func NewWaitlistStagingJob(inventory *usecases.LicenseInventory, waitlistRepo repositories.WaitlistRepository, interval time.Duration) *WaitlistStagingJob {
	return &WaitlistStagingJob{
		inventory:    inventory,
		waitlistRepo: waitlistRepo,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

// Start runs the staging loop until ctx is cancelled or Stop is called.
func (j *WaitlistStagingJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// Stop halts the loop. Safe to call once.
func (j *WaitlistStagingJob) Stop() {
	close(j.stop)
}

func (j *WaitlistStagingJob) runOnce(ctx context.Context) {
	refs, err := j.waitlistRepo.DistinctProductRefsPending(ctx)
	if err != nil {
		logger.Error(ctx, "waitlist staging: failed to list pending product refs", zap.Error(err))
		return
	}

	for _, ref := range refs {
		if err := j.inventory.StageWaitlistReservations(ctx, ref); err != nil {
			logger.Error(ctx, "waitlist staging: failed for product", zap.String("productRef", ref), zap.Error(err))
		}
	}
}
