package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
)

func TestTransactionRepo_CreateGetUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	tx := &entities.Transaction{
		OrderID:    orderID,
		Gateway:    "epayco",
		GatewayRef: "ref-1",
		Amount:     55000,
		Currency:   "COP",
		Status:     entities.TransactionStatusCreated,
	}
	require.NoError(t, repo.Create(ctx, tx))

	got, err := repo.GetByGatewayRef(ctx, "epayco", "ref-1")
	require.NoError(t, err)
	require.Equal(t, tx.ID, got.ID)

	got.Status = entities.TransactionStatusPaid
	got.Meta.LastWebhookAt = timePtr(time.Now())
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, entities.TransactionStatusPaid, reloaded.Status)

	_, err = repo.GetByGatewayRef(ctx, "epayco", "missing")
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestTransactionRepo_AmountCorrelationAndCountOpen(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()
	orderID := uuid.New()

	since := time.Now().Add(-1 * time.Hour)

	t1 := &entities.Transaction{OrderID: orderID, Gateway: "epayco", Amount: 55000, Currency: "COP", Status: entities.TransactionStatusPending}
	require.NoError(t, repo.Create(ctx, t1))

	matches, err := repo.FindByAmountCorrelation(ctx, "epayco", 55000, since)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	t2 := &entities.Transaction{OrderID: orderID, Gateway: "epayco", Amount: 55000, Currency: "COP", Status: entities.TransactionStatusPending}
	require.NoError(t, repo.Create(ctx, t2))

	matches, err = repo.FindByAmountCorrelation(ctx, "epayco", 55000, since)
	require.NoError(t, err)
	require.Len(t, matches, 2, "ambiguous correlation must surface both candidates so the caller can abort")

	count, err := repo.CountOpenForOrder(ctx, orderID, t1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	list, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func timePtr(t time.Time) *time.Time { return &t }

func TestTransactionRepo_StuckSince(t *testing.T) {
	db := newTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	stuck := &entities.Transaction{OrderID: uuid.New(), Gateway: "epayco", Amount: 1000, Currency: "COP", Status: entities.TransactionStatusPending}
	require.NoError(t, repo.Create(ctx, stuck))
	require.NoError(t, db.Table("transactions").Where("id = ?", stuck.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	fresh := &entities.Transaction{OrderID: uuid.New(), Gateway: "epayco", Amount: 2000, Currency: "COP", Status: entities.TransactionStatusPending}
	require.NoError(t, repo.Create(ctx, fresh))

	paid := &entities.Transaction{OrderID: uuid.New(), Gateway: "epayco", Amount: 3000, Currency: "COP", Status: entities.TransactionStatusPaid}
	require.NoError(t, repo.Create(ctx, paid))
	require.NoError(t, db.Table("transactions").Where("id = ?", paid.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	stuckList, err := repo.StuckSince(ctx,
		[]entities.TransactionStatus{entities.TransactionStatusCreated, entities.TransactionStatusPending},
		time.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuckList, 1, "only the old PENDING transaction qualifies: the fresh one is too recent, the PAID one is terminal")
	require.Equal(t, stuck.ID, stuckList[0].ID)
}
