package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent is the GORM-tagged row backing the audit log and idempotency
// index. Payload/RawHeaders/RawBody are stored as text/blob columns.
type WebhookEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Provider     string    `gorm:"not null;index:idx_webhook_idempotency,priority:1"`
	ExternalRef  string    `gorm:"not null;index:idx_webhook_idempotency,priority:2"`
	EventID      string
	EventType    string
	EventStatus  string
	AmountCents  int64
	Currency     string
	Payload      string `gorm:"type:text"`
	RawHeaders   string `gorm:"type:text"`
	RawBody      []byte `gorm:"type:blob"`
	ProcessedAt  *time.Time
	Status       string `gorm:"not null;index"`
	ErrorMessage string
	EventIndex   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
