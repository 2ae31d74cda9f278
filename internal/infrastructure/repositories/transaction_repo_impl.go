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

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) domainrepos.TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Create(ctx context.Context, t *entities.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = utils.GenerateUUIDv7()
	}
	m, err := toTransactionModel(t)
	if err != nil {
		return err
	}
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	t.CreatedAt = m.CreatedAt
	t.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	var m models.Transaction
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTransactionEntity(&m)
}

func (r *transactionRepo) GetByGatewayRef(ctx context.Context, gateway, gatewayRef string) (*entities.Transaction, error) {
	var m models.Transaction
	err := GetDB(ctx, r.db).Where("gateway = ? AND gateway_ref = ?", gateway, gatewayRef).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTransactionEntity(&m)
}

func (r *transactionRepo) FindByAmountCorrelation(ctx context.Context, gateway string, amountCents int64, since time.Time) ([]*entities.Transaction, error) {
	var rows []models.Transaction
	err := GetDB(ctx, r.db).
		Where("gateway = ? AND status IN ? AND amount = ? AND created_at >= ?",
			gateway,
			[]string{string(entities.TransactionStatusCreated), string(entities.TransactionStatusPending)},
			amountCents, since).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	items := make([]*entities.Transaction, 0, len(rows))
	for i := range rows {
		e, err := toTransactionEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func (r *transactionRepo) CountOpenForOrder(ctx context.Context, orderID, excludeID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&models.Transaction{}).
		Where("order_id = ? AND id != ? AND status IN ?", orderID, excludeID,
			[]string{string(entities.TransactionStatusCreated), string(entities.TransactionStatusPending)}).
		Count(&count).Error
	return count, err
}

func (r *transactionRepo) StuckSince(ctx context.Context, statuses []entities.TransactionStatus, olderThan time.Time, limit int) ([]*entities.Transaction, error) {
	statusStrs := make([]string, 0, len(statuses))
	for _, s := range statuses {
		statusStrs = append(statusStrs, string(s))
	}
	query := GetDB(ctx, r.db).
		Where("status IN ? AND created_at <= ?", statusStrs, olderThan).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]*entities.Transaction, 0, len(rows))
	for i := range rows {
		e, err := toTransactionEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func (r *transactionRepo) Update(ctx context.Context, t *entities.Transaction) error {
	m, err := toTransactionModel(t)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&models.Transaction{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"gateway":        m.Gateway,
		"gateway_ref":    m.GatewayRef,
		"amount":         m.Amount,
		"currency":       m.Currency,
		"status":         m.Status,
		"payment_method": m.PaymentMethod,
		"invoice_status": m.InvoiceStatus,
		"meta":           m.Meta,
		"updated_at":     m.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	t.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *transactionRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*entities.Transaction, error) {
	var rows []models.Transaction
	if err := GetDB(ctx, r.db).Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]*entities.Transaction, 0, len(rows))
	for i := range rows {
		e, err := toTransactionEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

func toTransactionModel(t *entities.Transaction) (*models.Transaction, error) {
	metaJSON, err := json.Marshal(t.Meta)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:            t.ID,
		OrderID:       t.OrderID,
		Gateway:       t.Gateway,
		GatewayRef:    t.GatewayRef,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        string(t.Status),
		PaymentMethod: t.PaymentMethod,
		InvoiceStatus: t.InvoiceStatus,
		Meta:          string(metaJSON),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}, nil
}

func toTransactionEntity(m *models.Transaction) (*entities.Transaction, error) {
	t := &entities.Transaction{
		ID:            m.ID,
		OrderID:       m.OrderID,
		Gateway:       m.Gateway,
		GatewayRef:    m.GatewayRef,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        entities.TransactionStatus(m.Status),
		PaymentMethod: m.PaymentMethod,
		InvoiceStatus: m.InvoiceStatus,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Meta != "" {
		if err := json.Unmarshal([]byte(m.Meta), &t.Meta); err != nil {
			return nil, err
		}
	}
	return t, nil
}
