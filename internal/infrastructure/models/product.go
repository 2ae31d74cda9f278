package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the GORM-tagged row for the minimal read-only product
// projection the core consumes. Full product management is external.
type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductRef  string    `gorm:"not null;uniqueIndex"`
	Name        string    `gorm:"not null"`
	PriceCents  int64     `gorm:"not null"`
	Currency    string    `gorm:"not null"`
	LicenseType bool      `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Product) TableName() string { return "products" }
