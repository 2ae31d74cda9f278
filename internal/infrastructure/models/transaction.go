package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction is the GORM-tagged row for payment attempts. Meta is a JSON
// text column holding the append-only audit subtree.
type Transaction struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Gateway       string    `gorm:"not null;index"`
	GatewayRef    string    `gorm:"index"`
	Amount        int64     `gorm:"not null"`
	Currency      string    `gorm:"not null"`
	Status        string    `gorm:"not null;index"`
	PaymentMethod string
	InvoiceStatus string
	Meta          string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (Transaction) TableName() string { return "transactions" }
