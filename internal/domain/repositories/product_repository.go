package repositories

import (
	"context"

	"licensepay.backend/internal/domain/entities"
)

// ProductRepository is a read-only lookup onto product metadata. Full
// product CRUD is an external collaborator; the core only ever reads.
type ProductRepository interface {
	GetByRef(ctx context.Context, productRef string) (*entities.Product, error)
}
