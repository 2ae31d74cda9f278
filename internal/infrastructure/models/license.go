package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// License is the GORM-tagged row for pre-provisioned license inventory.
type License struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProductRef   string     `gorm:"not null;index"`
	LicenseKey   string     `gorm:"not null;uniqueIndex"`
	Status       string     `gorm:"not null;index"`
	OrderID      *uuid.UUID `gorm:"type:uuid;index"`
	ReservedAt   *time.Time
	SoldAt       *time.Time
	Instructions string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (License) TableName() string { return "licenses" }
