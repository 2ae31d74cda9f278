package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	domainrepos "licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/models"
	"licensepay.backend/pkg/utils"
)

type webhookEventRepo struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) domainrepos.WebhookEventRepository {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) Create(ctx context.Context, e *entities.WebhookEvent) error {
	if e.ID == uuid.Nil {
		e.ID = utils.GenerateUUIDv7()
	}
	m := toWebhookEventModel(e)
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *webhookEventRepo) GetByIdempotencyKey(ctx context.Context, provider, externalRef string) (*entities.WebhookEvent, error) {
	var m models.WebhookEvent
	err := GetDB(ctx, r.db).Where("provider = ? AND external_ref = ?", provider, externalRef).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWebhookEventEntity(&m), nil
}

func (r *webhookEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookEvent, error) {
	var m models.WebhookEvent
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWebhookEventEntity(&m), nil
}

func (r *webhookEventRepo) Update(ctx context.Context, e *entities.WebhookEvent) error {
	m := toWebhookEventModel(e)
	m.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&models.WebhookEvent{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"event_id":      m.EventID,
		"event_type":    m.EventType,
		"event_status":  m.EventStatus,
		"amount_cents":  m.AmountCents,
		"currency":      m.Currency,
		"payload":       m.Payload,
		"raw_headers":   m.RawHeaders,
		"raw_body":      m.RawBody,
		"processed_at":  m.ProcessedAt,
		"status":        m.Status,
		"error_message": m.ErrorMessage,
		"event_index":   m.EventIndex,
		"updated_at":    m.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	e.UpdatedAt = m.UpdatedAt
	return nil
}

func toWebhookEventModel(e *entities.WebhookEvent) *models.WebhookEvent {
	headers := ""
	if len(e.RawHeaders) > 0 {
		if b, err := json.Marshal(e.RawHeaders); err == nil {
			headers = string(b)
		}
	}
	return &models.WebhookEvent{
		ID:           e.ID,
		Provider:     e.Provider,
		ExternalRef:  e.ExternalRef,
		EventID:      e.EventID,
		EventType:    string(e.EventType),
		EventStatus:  string(e.EventStatus),
		AmountCents:  e.AmountCents,
		Currency:     e.Currency,
		Payload:      string(e.Payload),
		RawHeaders:   headers,
		RawBody:      e.RawBody,
		ProcessedAt:  e.ProcessedAt,
		Status:       string(e.Status),
		ErrorMessage: e.ErrorMessage,
		EventIndex:   e.EventIndex,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toWebhookEventEntity(m *models.WebhookEvent) *entities.WebhookEvent {
	e := &entities.WebhookEvent{
		ID:           m.ID,
		Provider:     m.Provider,
		ExternalRef:  m.ExternalRef,
		EventID:      m.EventID,
		EventType:    entities.NormalizedEventType(m.EventType),
		EventStatus:  entities.NormalizedStatus(m.EventStatus),
		AmountCents:  m.AmountCents,
		Currency:     m.Currency,
		Payload:      []byte(m.Payload),
		RawBody:      m.RawBody,
		ProcessedAt:  m.ProcessedAt,
		Status:       entities.WebhookEventStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		EventIndex:   m.EventIndex,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.RawHeaders != "" {
		var h map[string]string
		if err := json.Unmarshal([]byte(m.RawHeaders), &h); err == nil {
			e.RawHeaders = h
		}
	}
	return e
}
