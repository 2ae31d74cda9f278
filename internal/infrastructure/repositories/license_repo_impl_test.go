package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
)

func TestLicenseRepo_CreateBulkFirstAvailableUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewLicenseRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.BulkCreate(ctx, []*entities.License{
		{ProductRef: "prod-1", LicenseKey: "KEY-1", Status: entities.LicenseStatusAvailable},
		{ProductRef: "prod-1", LicenseKey: "KEY-2", Status: entities.LicenseStatusAvailable},
	}))

	count, err := repo.CountByStatus(ctx, "prod-1", entities.LicenseStatusAvailable)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	first, err := repo.FirstAvailable(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, "KEY-1", first.LicenseKey)

	orderID := uuid.New()
	first.Status = entities.LicenseStatusSold
	first.OrderID = &orderID
	require.NoError(t, repo.Update(ctx, first))

	remaining, err := repo.AvailableForUpdate(ctx, "prod-1", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "KEY-2", remaining[0].LicenseKey)

	_, err = repo.FirstAvailable(ctx, "prod-nonexistent")
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	byOrder, err := repo.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, first.ID, byOrder.ID)

	_, err = repo.GetByOrderID(ctx, uuid.New())
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestLicenseRepo_ListFiltersByProductAndStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewLicenseRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.BulkCreate(ctx, []*entities.License{
		{ProductRef: "prod-1", LicenseKey: "L-1", Status: entities.LicenseStatusAvailable},
		{ProductRef: "prod-1", LicenseKey: "L-2", Status: entities.LicenseStatusSold},
		{ProductRef: "prod-2", LicenseKey: "L-3", Status: entities.LicenseStatusAvailable},
	}))

	available, total, err := repo.List(ctx, "prod-1", entities.LicenseStatusAvailable, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, available, 1)
	require.Equal(t, "L-1", available[0].LicenseKey)

	anyStatus, total, err := repo.List(ctx, "prod-1", "", 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, anyStatus, 2)

	everything, total, err := repo.List(ctx, "", "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, everything, 3)
}
