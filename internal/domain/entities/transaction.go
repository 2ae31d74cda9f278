package entities

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the lifecycle state of a payment attempt.
type TransactionStatus string

const (
	TransactionStatusCreated TransactionStatus = "CREATED"
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusPaid    TransactionStatus = "PAID"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is expected.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusPaid || s == TransactionStatusFailed
}

// TransactionMeta is the append-only audit subtree persisted on Transaction.meta.
type TransactionMeta struct {
	LastWebhookAt      *time.Time             `json:"lastWebhookAt,omitempty"`
	Webhook            map[string]interface{} `json:"webhook,omitempty"`
	Revived            map[string]interface{} `json:"revived,omitempty"`
	StatusVerification map[string]interface{} `json:"statusVerification,omitempty"`
	LicenseChange      map[string]interface{} `json:"licenseChange,omitempty"`
}

// Transaction is a single payment attempt against an Order.
type Transaction struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Gateway       string
	GatewayRef    string
	Amount        int64
	Currency      string
	Status        TransactionStatus
	PaymentMethod string
	InvoiceStatus string
	Meta          TransactionMeta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AlreadyPaidReplay reports whether applying event would be a no-op because
// the transaction is already PAID and the event reports PAID again.
func (t *Transaction) AlreadyPaidReplay(eventStatus TransactionStatus) bool {
	return t.Status == TransactionStatusPaid && eventStatus == TransactionStatusPaid
}

// StaleWebhook reports whether an incoming webhook's reported timestamp is
// older than the last one this transaction already applied.
func (t *Transaction) StaleWebhook(eventCreatedAt time.Time) bool {
	if t.Meta.LastWebhookAt == nil {
		return false
	}
	return eventCreatedAt.Before(*t.Meta.LastWebhookAt)
}
