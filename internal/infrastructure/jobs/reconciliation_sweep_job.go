package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"licensepay.backend/internal/usecases"
	"licensepay.backend/pkg/logger"
)

// reconciliationSweepBatchLimit bounds how many stuck transactions a single
// tick pulls, so one slow sweep can't starve the next scheduled tick.
const reconciliationSweepBatchLimit = 100

// ReconciliationSweepJob periodically finds transactions stuck in
// CREATED/PENDING beyond the configured threshold and runs each through
// ReconciliationVerifier — the out-of-band path for missed webhooks.
type ReconciliationSweepJob struct {
	verifier *usecases.ReconciliationVerifier
	interval time.Duration
	stop     chan struct{}
}

// NewReconciliationSweepJob builds a ReconciliationSweepJob.
func NewReconciliationSweepJob(verifier *usecases.ReconciliationVerifier, interval time.Duration) *ReconciliationSweepJob {
	return &ReconciliationSweepJob{verifier: verifier, interval: interval, stop: make(chan struct{})}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (j *ReconciliationSweepJob) Start(ctx context.Context) {
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
func (j *ReconciliationSweepJob) Stop() {
	close(j.stop)
}

func (j *ReconciliationSweepJob) runOnce(ctx context.Context) {
	ids, err := j.verifier.DueTransactionIDs(ctx, reconciliationSweepBatchLimit)
	if err != nil {
		logger.Error(ctx, "reconciliation sweep: failed to list due transactions", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	logger.Info(ctx, "reconciliation sweep: verifying stuck transactions", zap.Int("count", len(ids)))
	errs := j.verifier.VerifyMultiple(ctx, ids)
	if len(errs) > 0 {
		logger.Warn(ctx, "reconciliation sweep: some verifications failed", zap.Int("failed", len(errs)), zap.Int("total", len(ids)))
	}
}
