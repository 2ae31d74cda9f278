package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/mailqueue"
	"licensepay.backend/pkg/logger"
	"licensepay.backend/pkg/utils"
)

// AdminOps implements the bounded, operator-triggered recovery
// operations: revive-order, change-license, resend-license-email. They sit alongside TransactionEngine and
// LicenseInventory rather than inside them — nothing here is driven by a
// webhook — but they reuse the exact same reservation/email/commit
// sequencing so an admin action can never diverge from webhook-driven state.
type AdminOps struct {
	orderRepo    repositories.OrderRepository
	licenseRepo  repositories.LicenseRepository
	productRepo  repositories.ProductRepository
	waitlistRepo repositories.WaitlistRepository
	inventory    *LicenseInventory
	mailQueue    *mailqueue.Queue
	uow          repositories.UnitOfWork
}

// NewAdminOps builds an AdminOps.
func NewAdminOps(
	orderRepo repositories.OrderRepository,
	licenseRepo repositories.LicenseRepository,
	productRepo repositories.ProductRepository,
	waitlistRepo repositories.WaitlistRepository,
	inventory *LicenseInventory,
	mailQueue *mailqueue.Queue,
	uow repositories.UnitOfWork,
) *AdminOps {
	return &AdminOps{
		orderRepo:    orderRepo,
		licenseRepo:  licenseRepo,
		productRepo:  productRepo,
		waitlistRepo: waitlistRepo,
		inventory:    inventory,
		mailQueue:    mailQueue,
		uow:          uow,
	}
}

// ReviveOrder re-drives a CANCELED order through the same reservation/email
// path a webhook would have taken. It is the only way out of a terminal
// CANCELED status. A license product still out of stock
// revives into IN_PROCESS on the waitlist rather than failing outright.
func (a *AdminOps) ReviveOrder(ctx context.Context, orderID uuid.UUID) (*entities.Order, error) {
	order, err := a.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanRevive() {
		return nil, domainerrors.Conflict("order is not in a revivable state")
	}

	product, err := a.productRepo.GetByRef(ctx, order.ProductRef)
	if err != nil {
		return nil, err
	}

	var postCommit func()
	err = a.uow.Do(ctx, func(txCtx context.Context) error {
		stampMeta(order, "revived", map[string]interface{}{
			"note":      "order revived by admin",
			"revivedAt": time.Now(),
		})

		if !product.LicenseType {
			order.Status = entities.OrderStatusCompleted
			return a.orderRepo.Update(txCtx, order)
		}

		outcome, err := a.inventory.ReserveLicense(txCtx, order)
		if err != nil {
			return err
		}

		if outcome.Waitlisted() {
			order.Status = entities.OrderStatusInProcess
			if err := a.orderRepo.Update(txCtx, order); err != nil {
				return err
			}
			entry := outcome.WaitlistEntry
			postCommit = func() {
				if _, subErr := a.mailQueue.Submit(mailqueue.Task{
					Type: mailqueue.TaskWaitlistNotification,
					RefIDs: map[string]string{
						mailqueue.RefRecipient:      order.ShippingInfo.RecipientEmail,
						mailqueue.RefCustomerName:   order.ShippingInfo.RecipientName,
						mailqueue.RefOrderID:        order.ID.String(),
						mailqueue.RefProductRef:     order.ProductRef,
						mailqueue.RefEntryID:        entry.ID.String(),
						mailqueue.RefNotificationID: mailqueue.WaitlistNotificationID(entry.ID.String()),
					},
				}); subErr != nil {
					logger.Error(context.Background(), "admin revive: waitlist notification submission failed", zap.Error(subErr))
				}
			}
			return nil
		}

		return a.completeWithLicense(txCtx, order, outcome.License)
	})
	if err != nil {
		return nil, err
	}
	if postCommit != nil {
		postCommit()
	}
	return order, nil
}

func (a *AdminOps) completeWithLicense(ctx context.Context, order *entities.Order, license *entities.License) error {
	now := time.Now()
	messageID, sendErr := a.mailQueue.SendNow(ctx, mailqueue.Task{
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
		order.Status = entities.OrderStatusInProcess
		order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
			Sent:        false,
			AttemptedAt: &now,
			Recipient:   order.ShippingInfo.RecipientEmail,
			Type:        "license_delivery",
			Error:       sendErr.Error(),
		}
		return a.orderRepo.Update(ctx, order)
	}

	order.Status = entities.OrderStatusCompleted
	order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
		Sent:      true,
		SentAt:    &now,
		MessageID: messageID,
		Recipient: order.ShippingInfo.RecipientEmail,
		Type:      "license_delivery",
	}
	return a.orderRepo.Update(ctx, order)
}

// ChangeLicense swaps a SOLD license for a different AVAILABLE one of the
// same product, atomically: the old license resets to AVAILABLE, the new
// one is sold in its place. Both License rows are locked for the duration of
// the swap so a waitlist staging tick can't claim the freed license mid-change.
func (a *AdminOps) ChangeLicense(ctx context.Context, orderID, newLicenseID uuid.UUID) (*entities.License, error) {
	var result *entities.License
	err := a.uow.Do(ctx, func(txCtx context.Context) error {
		order, err := a.orderRepo.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}

		lockedCtx := a.uow.WithLock(txCtx)
		oldLicense, err := a.licenseRepo.GetByOrderID(lockedCtx, orderID)
		if err != nil {
			return err
		}
		newLicense, err := a.licenseRepo.GetByID(lockedCtx, newLicenseID)
		if err != nil {
			return err
		}
		if newLicense.Status != entities.LicenseStatusAvailable {
			return domainerrors.Conflict("replacement license is not available")
		}
		if newLicense.ProductRef != oldLicense.ProductRef {
			return domainerrors.Conflict("replacement license is for a different product")
		}

		now := time.Now()
		oldLicense.Status = entities.LicenseStatusAvailable
		oldLicense.OrderID = nil
		oldLicense.SoldAt = nil
		oldLicense.ReservedAt = nil
		if err := a.licenseRepo.Update(txCtx, oldLicense); err != nil {
			return err
		}

		newLicense.Status = entities.LicenseStatusSold
		newLicense.OrderID = &order.ID
		newLicense.SoldAt = &now
		if err := a.licenseRepo.Update(txCtx, newLicense); err != nil {
			return err
		}

		stampMeta(order, "licenseChange", map[string]interface{}{
			"previousLicenseId": oldLicense.ID.String(),
			"newLicenseId":      newLicense.ID.String(),
			"changedAt":         now,
		})
		if err := a.orderRepo.Update(txCtx, order); err != nil {
			return err
		}

		result = newLicense
		return nil
	})
	return result, err
}

// ResendLicenseEmail retries delivery of the license already assigned to
// orderID — the documented recovery path when the synchronous send failed
// and the order was left IN_PROCESS without a confirmed email.
func (a *AdminOps) ResendLicenseEmail(ctx context.Context, orderID uuid.UUID) (*entities.Order, error) {
	order, err := a.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	license, err := a.licenseRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	messageID, sendErr := a.mailQueue.SendNow(ctx, mailqueue.Task{
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
		order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
			Sent:        false,
			AttemptedAt: &now,
			Recipient:   order.ShippingInfo.RecipientEmail,
			Type:        "license_delivery",
			Error:       sendErr.Error(),
		}
		if updErr := a.orderRepo.Update(ctx, order); updErr != nil {
			logger.Error(ctx, "admin resend: failed to persist failed-retry record", zap.Error(updErr))
		}
		return nil, domainerrors.ExternalProvider("license email resend failed",
			fmt.Errorf("%w: %w", domainerrors.ErrExternalProvider, sendErr))
	}

	order.Status = entities.OrderStatusCompleted
	order.ShippingInfo.Email = &entities.EmailDeliveryRecord{
		Sent:      true,
		SentAt:    &now,
		MessageID: messageID,
		Recipient: order.ShippingInfo.RecipientEmail,
		Type:      "license_delivery",
	}
	if err := a.orderRepo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListWaitlist pages through waitlist entries in queue order (priority
// ASC), optionally filtered to one product — the operator's view of who is
// next in line and why an entry is stuck.
func (a *AdminOps) ListWaitlist(ctx context.Context, productRef string, params utils.PaginationParams) ([]*entities.WaitlistEntry, utils.PaginationMeta, error) {
	entries, total, err := a.waitlistRepo.List(ctx, productRef, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return entries, utils.CalculateMeta(total, params.Page, params.Limit), nil
}

// ListLicenses pages through license inventory, optionally filtered by
// product and status — the operator's stock view backing replenishment and
// change-license decisions.
func (a *AdminOps) ListLicenses(ctx context.Context, productRef string, status entities.LicenseStatus, params utils.PaginationParams) ([]*entities.License, utils.PaginationMeta, error) {
	licenses, total, err := a.licenseRepo.List(ctx, productRef, status, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return licenses, utils.CalculateMeta(total, params.Page, params.Limit), nil
}

func stampMeta(order *entities.Order, key string, value map[string]interface{}) {
	if order.Meta == nil {
		order.Meta = make(map[string]interface{}, 2)
	}
	order.Meta[key] = value
}
