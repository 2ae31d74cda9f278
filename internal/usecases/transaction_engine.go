package usecases

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/mailqueue"
	"licensepay.backend/pkg/logger"
)

// EngineConfig tunes the transaction engine's correlation and retry windows.
type EngineConfig struct {
	// AmountCorrelationWindow bounds how far back the amount-correlation
	// fallback looks for a CREATED/PENDING sibling when a provider's
	// failure webhook omits the correlation id.
	AmountCorrelationWindow time.Duration
}

// DefaultEngineConfig matches the window specified for the amount
// correlation fallback.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{AmountCorrelationWindow: time.Hour}
}

// TransactionEngine advances Transaction and Order state under a single DB
// transaction per webhook event, reserving license inventory and queuing
// delivery emails as ordered side effects. It implements TransactionHandler
// so WebhookIngressUsecase can dispatch directly to it.
type TransactionEngine struct {
	txRepo      repositories.TransactionRepository
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	inventory   *LicenseInventory
	mailQueue   *mailqueue.Queue
	uow         repositories.UnitOfWork
	cfg         EngineConfig
}

// NewTransactionEngine builds a TransactionEngine.
func NewTransactionEngine(
	txRepo repositories.TransactionRepository,
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	inventory *LicenseInventory,
	mailQueue *mailqueue.Queue,
	uow repositories.UnitOfWork,
	cfg EngineConfig,
) *TransactionEngine {
	if cfg.AmountCorrelationWindow <= 0 {
		cfg.AmountCorrelationWindow = time.Hour
	}
	return &TransactionEngine{
		txRepo:      txRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		inventory:   inventory,
		mailQueue:   mailQueue,
		uow:         uow,
		cfg:         cfg,
	}
}

func mapEventStatus(s entities.NormalizedStatus) entities.TransactionStatus {
	switch s {
	case entities.NormalizedStatusPaid:
		return entities.TransactionStatusPaid
	case entities.NormalizedStatusPending:
		return entities.TransactionStatusPending
	default:
		return entities.TransactionStatusFailed
	}
}

// Handle resolves the Transaction a normalized event belongs to and, if
// found, applies the state transition inside a single DB transaction. A
// transaction_not_found outcome, a balance_credit event with no
// correlation, and an ambiguous amount-correlation match are all
// acknowledged without error — the ingress layer must still ack 200.
func (e *TransactionEngine) Handle(ctx context.Context, event entities.NormalizedEvent) error {
	tx, err := e.resolveTransaction(ctx, event)
	if err != nil {
		return err
	}
	if tx == nil {
		return nil
	}

	newStatus := mapEventStatus(event.Status)
	if tx.AlreadyPaidReplay(newStatus) {
		logger.Info(ctx, "transaction engine: already-paid replay, no-op", zap.String("transactionId", tx.ID.String()))
		return nil
	}
	if tx.StaleWebhook(event.CreatedAt) {
		logger.Info(ctx, "transaction engine: stale webhook ignored", zap.String("transactionId", tx.ID.String()))
		return nil
	}

	var postCommit []func()
	err = e.uow.Do(ctx, func(txCtx context.Context) error {
		lockedCtx := e.uow.WithLock(txCtx)
		locked, err := e.txRepo.GetByID(lockedCtx, tx.ID)
		if err != nil {
			return err
		}

		// Re-check under the row lock: another goroutine may have applied
		// a transition between the pre-check above and acquiring the lock
		// here. A terminal transaction never moves again — a delayed
		// out-of-order delivery (PENDING arriving after PAID) must not
		// regress it and re-drive the success path.
		if locked.Status.IsTerminal() {
			if locked.Status != newStatus {
				logger.Warn(ctx, "transaction engine: ignoring transition out of terminal status",
					zap.String("transactionId", locked.ID.String()),
					zap.String("status", string(locked.Status)),
					zap.String("eventStatus", string(newStatus)))
			}
			return nil
		}
		if locked.StaleWebhook(event.CreatedAt) {
			return nil
		}

		oldStatus := locked.Status
		now := time.Now()
		locked.Status = newStatus
		locked.Meta.LastWebhookAt = &now
		locked.Meta.Webhook = mergeWebhookMeta(locked.Meta.Webhook, event)
		if newStatus == entities.TransactionStatusPaid {
			locked.InvoiceStatus = "PENDING"
		}
		if err := e.txRepo.Update(txCtx, locked); err != nil {
			return err
		}

		switch {
		case oldStatus != entities.TransactionStatusPaid && newStatus == entities.TransactionStatusPaid:
			fn, err := e.handlePaymentSuccess(txCtx, locked)
			if err != nil {
				return err
			}
			if fn != nil {
				postCommit = append(postCommit, fn)
			}
		case newStatus == entities.TransactionStatusFailed:
			if err := e.handlePaymentFailure(txCtx, locked); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, fn := range postCommit {
		fn()
	}
	return nil
}

// resolveTransaction looks up the Transaction a normalized event applies
// to, first by gatewayRef, then — only for failure-class events with no
// gatewayRef match — by the amount-correlation fallback. A nil, nil return
// means the caller should acknowledge without mutating anything.
func (e *TransactionEngine) resolveTransaction(ctx context.Context, event entities.NormalizedEvent) (*entities.Transaction, error) {
	if event.ExternalRef != "" {
		tx, err := e.txRepo.GetByGatewayRef(ctx, event.Provider, event.ExternalRef)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, domainerrors.ErrNotFound) {
			return nil, err
		}
	}

	if event.Type == entities.EventTypeBalanceCredit {
		logger.Info(ctx, "transaction engine: balance_credit event without correlation, acknowledged",
			zap.String("provider", event.Provider))
		return nil, nil
	}

	if event.Status != entities.NormalizedStatusFailed {
		logger.Warn(ctx, "transaction engine: transaction not found for webhook",
			zap.String("provider", event.Provider), zap.String("externalRef", event.ExternalRef))
		return nil, nil
	}

	since := time.Now().Add(-e.cfg.AmountCorrelationWindow)
	candidates, err := e.txRepo.FindByAmountCorrelation(ctx, event.Provider, event.AmountCents, since)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		logger.Warn(ctx, "transaction engine: no amount-correlation match, acknowledged without mutation",
			zap.String("provider", event.Provider), zap.Int64("amountCents", event.AmountCents))
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		logger.Warn(ctx, "transaction engine: ambiguous amount-correlation match, aborting without mutation",
			zap.String("provider", event.Provider), zap.Int64("amountCents", event.AmountCents), zap.Int("candidates", len(candidates)))
		return nil, nil
	}
}

func mergeWebhookMeta(existing map[string]interface{}, event entities.NormalizedEvent) map[string]interface{} {
	if existing == nil {
		existing = make(map[string]interface{}, 4)
	}
	existing["lastEventId"] = event.EventID
	existing["lastStatus"] = string(event.Status)
	existing["lastProvider"] = event.Provider
	existing["lastEventType"] = string(event.Type)
	return existing
}

// handlePaymentSuccess drives the order to IN_PROCESS and, for license
// products, reserves inventory and dispatches (or defers) the delivery
// email. The returned closure, if non-nil, must only run after the
// enclosing DB transaction commits.
func (e *TransactionEngine) handlePaymentSuccess(ctx context.Context, tx *entities.Transaction) (func(), error) {
	order, err := e.orderRepo.GetByID(ctx, tx.OrderID)
	if err != nil {
		return nil, err
	}
	order.Status = entities.OrderStatusInProcess

	product, err := e.productRepo.GetByRef(ctx, order.ProductRef)
	if err != nil {
		return nil, err
	}

	if !product.LicenseType {
		order.Status = entities.OrderStatusCompleted
		if err := e.orderRepo.Update(ctx, order); err != nil {
			return nil, err
		}
		task := mailqueue.Task{
			Type: mailqueue.TaskOrderConfirmation,
			RefIDs: map[string]string{
				mailqueue.RefRecipient:    order.ShippingInfo.RecipientEmail,
				mailqueue.RefCustomerName: order.ShippingInfo.RecipientName,
				mailqueue.RefOrderID:      order.ID.String(),
				mailqueue.RefProductRef:   order.ProductRef,
				mailqueue.RefQty:          strconv.Itoa(order.Qty),
			},
		}
		return func() {
			if _, err := e.mailQueue.Submit(task); err != nil {
				logger.Error(context.Background(), "transaction engine: order confirmation submission failed", zap.Error(err))
			}
		}, nil
	}

	outcome, err := e.inventory.ReserveLicense(ctx, order)
	if err != nil {
		return nil, err
	}

	if outcome.Waitlisted() {
		if err := e.orderRepo.Update(ctx, order); err != nil {
			return nil, err
		}
		entry := outcome.WaitlistEntry
		task := mailqueue.Task{
			Type: mailqueue.TaskWaitlistNotification,
			RefIDs: map[string]string{
				mailqueue.RefRecipient:      order.ShippingInfo.RecipientEmail,
				mailqueue.RefCustomerName:   order.ShippingInfo.RecipientName,
				mailqueue.RefOrderID:        order.ID.String(),
				mailqueue.RefProductRef:     order.ProductRef,
				mailqueue.RefEntryID:        entry.ID.String(),
				mailqueue.RefNotificationID: mailqueue.WaitlistNotificationID(entry.ID.String()),
			},
		}
		return func() {
			if _, err := e.mailQueue.Submit(task); err != nil {
				logger.Error(context.Background(), "transaction engine: waitlist notification submission failed", zap.Error(err))
			}
		}, nil
	}

	license := outcome.License
	now := time.Now()
	messageID, sendErr := e.mailQueue.SendNow(ctx, mailqueue.Task{
		Type: mailqueue.TaskLicenseEmail,
		RefIDs: map[string]string{
			mailqueue.RefRecipient:    order.ShippingInfo.RecipientEmail,
			mailqueue.RefCustomerName: order.ShippingInfo.RecipientName,
			mailqueue.RefOrderID:      order.ID.String(),
			mailqueue.RefProductRef:   order.ProductRef,
			mailqueue.RefLicenseKey:   license.LicenseKey,
			mailqueue.RefInstructions: license.Instructions,
		},
	})

	if sendErr != nil {
		// Never leave an order COMPLETED without a confirmed email. The
		// license stays SOLD; a retry is picked up via the admin
		// resend-license-email operation, not an automatic release.
		order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
			Sent:        false,
			AttemptedAt: &now,
			Recipient:   order.ShippingInfo.RecipientEmail,
			Type:        "license_delivery",
			Error:       sendErr.Error(),
		}
		logger.Error(ctx, "transaction engine: synchronous license email failed, order stays IN_PROCESS",
			zap.String("orderId", order.ID.String()), zap.Error(sendErr))
		return nil, e.orderRepo.Update(ctx, order)
	}

	order.Status = entities.OrderStatusCompleted
	order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
		Sent:      true,
		SentAt:    &now,
		MessageID: messageID,
		Recipient: order.ShippingInfo.RecipientEmail,
		Type:      "license_delivery",
	}
	return nil, e.orderRepo.Update(ctx, order)
}

// handlePaymentFailure cancels the order only if no sibling transaction is
// still in flight.
func (e *TransactionEngine) handlePaymentFailure(ctx context.Context, tx *entities.Transaction) error {
	openCount, err := e.txRepo.CountOpenForOrder(ctx, tx.OrderID, tx.ID)
	if err != nil {
		return err
	}
	if openCount > 0 {
		return nil
	}

	order, err := e.orderRepo.GetByID(ctx, tx.OrderID)
	if err != nil {
		return err
	}
	order.Status = entities.OrderStatusCanceled
	return e.orderRepo.Update(ctx, order)
}
