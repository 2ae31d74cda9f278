package repositories

import (
	"context"

	"github.com/google/uuid"
	"licensepay.backend/internal/domain/entities"
)

// OrderRepository persists Order aggregates.
type OrderRepository interface {
	Create(ctx context.Context, o *entities.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Order, error)
	Update(ctx context.Context, o *entities.Order) error
	List(ctx context.Context, limit, offset int) ([]*entities.Order, int64, error)
}
