package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WaitlistEntry is the GORM-tagged row for the FIFO waitlist.
type WaitlistEntry struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OrderID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	CustomerID   uuid.UUID  `gorm:"type:uuid;not null"`
	ProductRef   string     `gorm:"not null;index"`
	Qty          int        `gorm:"not null"`
	Status       string     `gorm:"not null;index"`
	Priority     time.Time  `gorm:"not null;index"`
	LicenseID    *uuid.UUID `gorm:"type:uuid"`
	RetryCount   int        `gorm:"not null;default:0"`
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (WaitlistEntry) TableName() string { return "waitlist_entries" }
