package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"licensepay.backend/internal/config"
	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/gateway"
	"licensepay.backend/pkg/logger"
	"licensepay.backend/pkg/redis"
)

// GatewayStatusClient is the subset of gateway.Client the verifier needs:
// an on-demand, cache-bypassing status lookup keyed by the transaction's
// gatewayRef (the provider calls this its checkout id).
type GatewayStatusClient interface {
	GetCheckoutStatus(ctx context.Context, checkoutID string, bypassCache bool) (*gateway.CheckoutStatus, error)
}

// reconcileLockTTL bounds how long a "currently verifying" lock survives a
// crash mid-verification; a normal run releases it explicitly.
const reconcileLockTTL = 30 * time.Second

var gatewayToTransactionStatus = map[string]entities.NormalizedStatus{
	"completed": entities.NormalizedStatusPaid,
	"paid":      entities.NormalizedStatusPaid,
	"pending":   entities.NormalizedStatusPending,
	"failed":    entities.NormalizedStatusFailed,
	"cancelled": entities.NormalizedStatusFailed,
	"canceled":  entities.NormalizedStatusFailed,
}

// ReconciliationVerifier is C6: it polls the provider for a transaction's
// canonical status when a webhook may have been missed, and replays that
// status through the same TransactionHandler the webhook path uses — so
// reconciliation can never diverge from live-webhook semantics.
type ReconciliationVerifier struct {
	txRepo    repositories.TransactionRepository
	txHandler TransactionHandler
	gateways  map[string]GatewayStatusClient
	cfg       config.ReconciliationConfig
}

// NewReconciliationVerifier builds a ReconciliationVerifier. gateways maps
// a Transaction.Gateway value ("epayco", "paylink", ...) to the client that
// talks to that provider.
func NewReconciliationVerifier(
	txRepo repositories.TransactionRepository,
	txHandler TransactionHandler,
	gateways map[string]GatewayStatusClient,
	cfg config.ReconciliationConfig,
) *ReconciliationVerifier {
	return &ReconciliationVerifier{txRepo: txRepo, txHandler: txHandler, gateways: gateways, cfg: cfg}
}

// VerifyTransaction polls the provider for transactionID's canonical status
// and, if it differs from the locally-recorded one, replays it through C3.
// Guarded by a Redis SetNX lock so two concurrent callers (an admin click
// and a sweep tick) can't verify the same transaction at once.
func (v *ReconciliationVerifier) VerifyTransaction(ctx context.Context, transactionID string) error {
	lockKey := fmt.Sprintf("reconcile:%s", transactionID)
	acquired, err := redis.SetNX(ctx, lockKey, "1", reconcileLockTTL)
	if err != nil {
		return domainerrors.ExternalProvider("reconciliation lock unavailable", err)
	}
	if !acquired {
		return domainerrors.NewAppError(409, domainerrors.CodeConflict,
			"transaction is already being reconciled", domainerrors.ErrAlreadyProcessing)
	}
	defer func() {
		if delErr := redis.Del(ctx, lockKey); delErr != nil {
			logger.Warn(ctx, "reconciliation: failed to release lock", zap.String("transactionId", transactionID), zap.Error(delErr))
		}
	}()

	id, err := uuid.Parse(transactionID)
	if err != nil {
		return domainerrors.BadRequest("invalid transaction id: " + transactionID)
	}

	tx, err := v.txRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if tx.Status.IsTerminal() {
		logger.Info(ctx, "reconciliation: transaction already terminal, nothing to verify",
			zap.String("transactionId", transactionID), zap.String("status", string(tx.Status)))
		return nil
	}

	client, ok := v.gateways[tx.Gateway]
	if !ok {
		return domainerrors.NewAppError(400, domainerrors.CodeInvalidInput, "no gateway client configured for "+tx.Gateway, nil)
	}

	status, err := client.GetCheckoutStatus(ctx, tx.GatewayRef, true)
	if err != nil {
		return err
	}

	if status.ExternalID != "" && status.ExternalID != tx.GatewayRef {
		return domainerrors.Integrity(
			fmt.Sprintf("reconciliation: externalId mismatch for transaction %s: gateway reports %s", transactionID, status.ExternalID), nil)
	}
	if status.AmountCents != 0 && status.AmountCents != tx.Amount {
		return domainerrors.Integrity(
			fmt.Sprintf("reconciliation: amount mismatch for transaction %s: local %d, gateway %d", transactionID, tx.Amount, status.AmountCents), nil)
	}
	if status.Currency != "" && status.Currency != tx.Currency {
		return domainerrors.Integrity(
			fmt.Sprintf("reconciliation: currency mismatch for transaction %s: local %s, gateway %s", transactionID, tx.Currency, status.Currency), nil)
	}

	normalized, ok := gatewayToTransactionStatus[status.Status]
	if !ok {
		logger.Warn(ctx, "reconciliation: unrecognized gateway status, skipping",
			zap.String("transactionId", transactionID), zap.String("gatewayStatus", status.Status))
		return nil
	}

	if string(normalized) == string(localStatusOf(tx.Status)) {
		// Canonical status matches the local one already: no DB writes.
		return nil
	}

	event := entities.NormalizedEvent{
		Provider:    tx.Gateway,
		ExternalRef: tx.GatewayRef,
		EventID:     fmt.Sprintf("reconcile_%s_%d", transactionID, time.Now().UnixMilli()),
		Type:        entities.EventTypePayment,
		Status:      normalized,
		AmountCents: tx.Amount,
		Currency:    tx.Currency,
		CreatedAt:   time.Now(),
	}

	if err := v.txHandler.Handle(ctx, event); err != nil {
		return err
	}

	logger.Info(ctx, "reconciliation: replayed provider status",
		zap.String("transactionId", transactionID), zap.String("newStatus", string(normalized)))
	return nil
}

// localStatusOf maps a Transaction's own status into the NormalizedStatus
// space so it can be compared directly with the provider's reported status.
func localStatusOf(s entities.TransactionStatus) entities.NormalizedStatus {
	switch s {
	case entities.TransactionStatusPaid:
		return entities.NormalizedStatusPaid
	case entities.TransactionStatusFailed:
		return entities.NormalizedStatusFailed
	default:
		return entities.NormalizedStatusPending
	}
}

// VerifyMultiple runs VerifyTransaction over ids in small batches with a
// pause in between, so a sweep of many stuck transactions doesn't slam the
// provider with a burst of status calls.
func (v *ReconciliationVerifier) VerifyMultiple(ctx context.Context, ids []string) []error {
	var errs []error
	batchSize := v.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[i:end] {
			if err := v.VerifyTransaction(ctx, id); err != nil {
				logger.Warn(ctx, "reconciliation: verify failed", zap.String("transactionId", id), zap.Error(err))
				errs = append(errs, err)
			}
		}
		if end < len(ids) && v.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return errs
			case <-time.After(v.cfg.BatchPause):
			}
		}
	}
	return errs
}

// DueTransactionIDs lists transactions CREATED/PENDING older than the
// configured stuck threshold — the sweep job's discovery query.
func (v *ReconciliationVerifier) DueTransactionIDs(ctx context.Context, limit int) ([]string, error) {
	stuck, err := v.txRepo.StuckSince(ctx,
		[]entities.TransactionStatus{entities.TransactionStatusCreated, entities.TransactionStatusPending},
		time.Now().Add(-v.cfg.StuckThreshold),
		limit,
	)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(stuck))
	for _, tx := range stuck {
		ids = append(ids, tx.ID.String())
	}
	return ids, nil
}
