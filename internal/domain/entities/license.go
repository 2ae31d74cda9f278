package entities

import (
	"time"

	"github.com/google/uuid"
)

// LicenseStatus is the lifecycle state of a pre-provisioned license key.
type LicenseStatus string

const (
	LicenseStatusAvailable LicenseStatus = "AVAILABLE"
	LicenseStatusReserved  LicenseStatus = "RESERVED"
	LicenseStatusSold      LicenseStatus = "SOLD"
)

// License is a single unit of pre-provisioned inventory for a product.
type License struct {
	ID           uuid.UUID
	ProductRef   string
	LicenseKey   string
	Status       LicenseStatus
	OrderID      *uuid.UUID
	ReservedAt   *time.Time
	SoldAt       *time.Time
	Instructions string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sold reports the SOLD invariant: status=SOLD iff orderId and soldAt are set.
func (l *License) Sold() bool {
	return l.Status == LicenseStatusSold && l.OrderID != nil && l.SoldAt != nil
}
