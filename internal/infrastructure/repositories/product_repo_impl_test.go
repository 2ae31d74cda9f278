package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/infrastructure/models"
)

func TestProductRepo_GetByRef(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Product{
		ID: uuid.New(), ProductRef: "prod-1", Name: "Widget Pro",
		PriceCents: 100000, Currency: "USD", LicenseType: true,
	}).Error)

	repo := NewProductRepository(db)
	ctx := context.Background()

	got, err := repo.GetByRef(ctx, "prod-1")
	require.NoError(t, err)
	require.True(t, got.LicenseType)
	require.Equal(t, int64(100000), got.PriceCents)

	_, err = repo.GetByRef(ctx, "missing")
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}
