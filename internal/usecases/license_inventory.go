package usecases

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/mailqueue"
	"licensepay.backend/pkg/logger"
)

// ReservationOutcome is the result of attempting to reserve a license for
// an order: exactly one of License or WaitlistEntry is populated.
type ReservationOutcome struct {
	License       *entities.License
	WaitlistEntry *entities.WaitlistEntry
}

// Waitlisted reports whether the order missed inventory and went to the
// FIFO waitlist instead of getting a license immediately.
func (o ReservationOutcome) Waitlisted() bool { return o.WaitlistEntry != nil }

// LicenseInventory implements license reservation, waitlist staging and
// the waitlist-ticker's one-entry-per-tick email dispatch.
type LicenseInventory struct {
	licenseRepo  repositories.LicenseRepository
	waitlistRepo repositories.WaitlistRepository
	orderRepo    repositories.OrderRepository
	uow          repositories.UnitOfWork
	mailQueue    *mailqueue.Queue
}

// NewLicenseInventory builds a LicenseInventory.
func NewLicenseInventory(
	licenseRepo repositories.LicenseRepository,
	waitlistRepo repositories.WaitlistRepository,
	orderRepo repositories.OrderRepository,
	uow repositories.UnitOfWork,
	mailQueue *mailqueue.Queue,
) *LicenseInventory {
	return &LicenseInventory{
		licenseRepo:  licenseRepo,
		waitlistRepo: waitlistRepo,
		orderRepo:    orderRepo,
		uow:          uow,
		mailQueue:    mailQueue,
	}
}

// ReserveLicense selects and sells the first AVAILABLE license for the
// order's product under a row-level exclusive lock, or creates a PENDING
// WaitlistEntry when inventory is exhausted. The caller is expected to
// already be inside a DB transaction (ctx derived from uow.Do); ReserveLicense
// only adds the lock, it does not open its own transaction.
func (inv *LicenseInventory) ReserveLicense(ctx context.Context, order *entities.Order) (*ReservationOutcome, error) {
	lockedCtx := inv.uow.WithLock(ctx)

	license, err := inv.licenseRepo.FirstAvailable(lockedCtx, order.ProductRef)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNotFound) {
			return nil, err
		}

		entry := &entities.WaitlistEntry{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			ProductRef: order.ProductRef,
			Qty:        order.Qty,
			Status:     entities.WaitlistStatusPending,
			Priority:   time.Now(),
		}
		if err := inv.waitlistRepo.Create(ctx, entry); err != nil {
			return nil, err
		}
		return &ReservationOutcome{WaitlistEntry: entry}, nil
	}

	now := time.Now()
	license.Status = entities.LicenseStatusSold
	license.OrderID = &order.ID
	license.SoldAt = &now
	if err := inv.licenseRepo.Update(ctx, license); err != nil {
		return nil, err
	}
	return &ReservationOutcome{License: license}, nil
}

// StageWaitlistReservations pairs the oldest PENDING waitlist entries with
// newly-available licenses for productRef, up to min(pendingCount,
// availableCount), under a single locked DB transaction. Invoked by the
// waitlist staging job for each product that has PENDING entries.
func (inv *LicenseInventory) StageWaitlistReservations(ctx context.Context, productRef string) error {
	return inv.uow.Do(ctx, func(txCtx context.Context) error {
		pendingCount, err := inv.waitlistRepo.CountByStatus(txCtx, productRef, entities.WaitlistStatusPending)
		if err != nil {
			return err
		}
		availableCount, err := inv.licenseRepo.CountByStatus(txCtx, productRef, entities.LicenseStatusAvailable)
		if err != nil {
			return err
		}

		k := pendingCount
		if availableCount < k {
			k = availableCount
		}
		if k <= 0 {
			return nil
		}

		lockedCtx := inv.uow.WithLock(txCtx)
		licenses, err := inv.licenseRepo.AvailableForUpdate(lockedCtx, productRef, int(k))
		if err != nil {
			return err
		}
		entries, err := inv.waitlistRepo.OldestPendingForUpdate(lockedCtx, productRef, int(k))
		if err != nil {
			return err
		}

		pairs := len(licenses)
		if len(entries) < pairs {
			pairs = len(entries)
		}

		now := time.Now()
		for i := 0; i < pairs; i++ {
			license := licenses[i]
			entry := entries[i]

			license.Status = entities.LicenseStatusReserved
			license.ReservedAt = &now
			if err := inv.licenseRepo.Update(txCtx, license); err != nil {
				return err
			}

			entry.Status = entities.WaitlistStatusReadyForEmail
			entry.LicenseID = &license.ID
			if err := inv.waitlistRepo.Update(txCtx, entry); err != nil {
				return err
			}
		}

		logger.Info(txCtx, "waitlist staging: paired entries with licenses",
			zap.String("productRef", productRef), zap.Int("count", pairs))
		return nil
	})
}

// ProcessNextWaitlistEntry handles the single oldest READY_FOR_EMAIL entry
// (FIFO across all products), dispatching its license email synchronously
// and, on success, completing License/Order/WaitlistEntry together under a
// fresh DB transaction. Invoked by the scheduler at a fixed cadence — one
// entry per tick.
func (inv *LicenseInventory) ProcessNextWaitlistEntry(ctx context.Context) (bool, error) {
	entry, err := inv.waitlistRepo.OldestReadyForEmail(ctx)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	entry.Status = entities.WaitlistStatusProcessing
	if err := inv.waitlistRepo.Update(ctx, entry); err != nil {
		return false, err
	}

	license, err := inv.licenseRepo.GetByID(ctx, *entry.LicenseID)
	if err != nil {
		return true, inv.revertEntry(ctx, entry, "license lookup failed: "+err.Error())
	}
	order, err := inv.orderRepo.GetByID(ctx, entry.OrderID)
	if err != nil {
		return true, inv.revertEntry(ctx, entry, "order lookup failed: "+err.Error())
	}

	messageID, sendErr := inv.mailQueue.SendNow(ctx, mailqueue.Task{
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
		return true, inv.handleEmailFailure(ctx, entry, sendErr)
	}
	return true, inv.completeWaitlistEntry(ctx, entry, license, order, messageID)
}

func (inv *LicenseInventory) completeWaitlistEntry(ctx context.Context, entry *entities.WaitlistEntry, license *entities.License, order *entities.Order, messageID string) error {
	return inv.uow.Do(ctx, func(txCtx context.Context) error {
		now := time.Now()

		license.Status = entities.LicenseStatusSold
		license.SoldAt = &now
		if license.OrderID == nil {
			license.OrderID = &order.ID
		}
		if err := inv.licenseRepo.Update(txCtx, license); err != nil {
			return err
		}

		order.Status = entities.OrderStatusCompleted
		order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
			Sent:      true,
			SentAt:    &now,
			MessageID: messageID,
			Recipient: order.ShippingInfo.RecipientEmail,
			Type:      "license_delivery",
		}
		if err := inv.orderRepo.Update(txCtx, order); err != nil {
			return err
		}

		entry.Status = entities.WaitlistStatusCompleted
		return inv.waitlistRepo.Update(txCtx, entry)
	})
}

func (inv *LicenseInventory) handleEmailFailure(ctx context.Context, entry *entities.WaitlistEntry, sendErr error) error {
	entry.RetryCount++
	if entry.ExceededRetries() {
		entry.Status = entities.WaitlistStatusFailed
		entry.ErrorMessage = sendErr.Error()
		logger.Error(ctx, "waitlist entry exhausted retries",
			zap.String("entryId", entry.ID.String()), zap.Int("retryCount", entry.RetryCount), zap.Error(sendErr))
	} else {
		entry.Status = entities.WaitlistStatusReadyForEmail
		entry.ErrorMessage = sendErr.Error()
		logger.Warn(ctx, "waitlist license email failed, will retry",
			zap.String("entryId", entry.ID.String()), zap.Int("retryCount", entry.RetryCount), zap.Error(sendErr))
	}
	return inv.waitlistRepo.Update(ctx, entry)
}

func (inv *LicenseInventory) revertEntry(ctx context.Context, entry *entities.WaitlistEntry, reason string) error {
	entry.Status = entities.WaitlistStatusReadyForEmail
	entry.ErrorMessage = reason
	logger.Error(ctx, "waitlist entry processing aborted, reverting to ready-for-email",
		zap.String("entryId", entry.ID.String()), zap.String("reason", reason))
	return inv.waitlistRepo.Update(ctx, entry)
}
