package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	domainrepos "licensepay.backend/internal/domain/repositories"
	"licensepay.backend/internal/infrastructure/models"
)

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository builds the read-only Product lookup the core uses;
// full product CRUD lives in an external catalog system.
func NewProductRepository(db *gorm.DB) domainrepos.ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) GetByRef(ctx context.Context, productRef string) (*entities.Product, error) {
	var m models.Product
	if err := GetDB(ctx, r.db).Where("product_ref = ?", productRef).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &entities.Product{
		ID:          m.ID,
		ProductRef:  m.ProductRef,
		Name:        m.Name,
		PriceCents:  m.PriceCents,
		Currency:    m.Currency,
		LicenseType: m.LicenseType,
	}, nil
}
