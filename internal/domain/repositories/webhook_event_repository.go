package repositories

import (
	"context"

	"github.com/google/uuid"
	"licensepay.backend/internal/domain/entities"
)

// WebhookEventRepository persists the webhook audit/idempotency index.
type WebhookEventRepository interface {
	Create(ctx context.Context, e *entities.WebhookEvent) error
	// GetByIdempotencyKey looks up the existing record for (provider,
	// externalRef), the pair that de-duplicates webhook deliveries.
	GetByIdempotencyKey(ctx context.Context, provider, externalRef string) (*entities.WebhookEvent, error)
	Update(ctx context.Context, e *entities.WebhookEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookEvent, error)
}
