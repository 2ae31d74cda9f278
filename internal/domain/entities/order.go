package entities

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusInProcess OrderStatus = "IN_PROCESS"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// ShippingInfo is the opaque structured metadata describing fulfillment
// destination and, for license products, the delivered-email record.
type ShippingInfo struct {
	RecipientEmail string               `json:"recipientEmail,omitempty"`
	RecipientName  string               `json:"recipientName,omitempty"`
	Email          *EmailDeliveryRecord `json:"email,omitempty"`
}

// EmailDeliveryRecord tracks the license/confirmation email side effect
// that Order.status=COMPLETED is conditioned on for license products.
type EmailDeliveryRecord struct {
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	MessageID   string     `json:"messageId,omitempty"`
	Recipient   string     `json:"recipient,omitempty"`
	Type        string     `json:"type,omitempty"`
	AttemptedAt *time.Time `json:"attemptedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Order is the customer-facing unit of sale.
type Order struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	ProductRef    string
	Qty           int
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	GrandTotal    int64
	Currency      string
	Status        OrderStatus
	ShippingInfo  ShippingInfo
	Meta          map[string]interface{}
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanRevive reports whether this order sits in the terminal state the
// admin "revive" operation is allowed to act on.
func (o *Order) CanRevive() bool {
	return o.Status == OrderStatusCanceled
}
