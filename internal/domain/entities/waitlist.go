package entities

import (
	"time"

	"github.com/google/uuid"
)

// WaitlistStatus is the lifecycle state of a FIFO waitlist entry.
type WaitlistStatus string

const (
	WaitlistStatusPending       WaitlistStatus = "PENDING"
	WaitlistStatusReadyForEmail WaitlistStatus = "READY_FOR_EMAIL"
	WaitlistStatusProcessing    WaitlistStatus = "PROCESSING"
	WaitlistStatusCompleted     WaitlistStatus = "COMPLETED"
	WaitlistStatusFailed        WaitlistStatus = "FAILED"
)

// MaxWaitlistRetries bounds the retry count before an entry is marked FAILED.
const MaxWaitlistRetries = 3

// WaitlistEntry is a paid order awaiting license inventory.
type WaitlistEntry struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	CustomerID   uuid.UUID
	ProductRef   string
	Qty          int
	Status       WaitlistStatus
	Priority     time.Time
	LicenseID    *uuid.UUID
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExceededRetries reports whether the entry has used up its retry budget.
func (w *WaitlistEntry) ExceededRetries() bool {
	return w.RetryCount > MaxWaitlistRetries
}
