package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is the GORM-tagged row for orders. ShippingInfo and Meta are stored
// as JSON text columns and (de)serialized in the repository layer.
type Order struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductRef    string    `gorm:"not null;index"`
	Qty           int       `gorm:"not null"`
	SubtotalCents int64     `gorm:"not null"`
	DiscountCents int64     `gorm:"not null"`
	TaxCents      int64     `gorm:"not null"`
	GrandTotal    int64     `gorm:"not null"`
	Currency      string    `gorm:"not null"`
	Status        string    `gorm:"not null;index"`
	ShippingInfo  string    `gorm:"type:text"`
	Meta          string    `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (Order) TableName() string { return "orders" }
