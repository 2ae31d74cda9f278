package repositories

import (
	"context"
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

type waitlistRepo struct {
	db *gorm.DB
}

func NewWaitlistRepository(db *gorm.DB) domainrepos.WaitlistRepository {
	return &waitlistRepo{db: db}
}

func (r *waitlistRepo) Create(ctx context.Context, w *entities.WaitlistEntry) error {
	if w.ID == uuid.Nil {
		w.ID = utils.GenerateUUIDv7()
	}
	m := toWaitlistModel(w)
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	w.CreatedAt = m.CreatedAt
	w.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *waitlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.WaitlistEntry, error) {
	var m models.WaitlistEntry
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWaitlistEntity(&m), nil
}

func (r *waitlistRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entities.WaitlistEntry, error) {
	var m models.WaitlistEntry
	if err := GetDB(ctx, r.db).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWaitlistEntity(&m), nil
}

func (r *waitlistRepo) CountByStatus(ctx context.Context, productRef string, status entities.WaitlistStatus) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&models.WaitlistEntry{}).
		Where("product_ref = ? AND status = ?", productRef, string(status)).
		Count(&count).Error
	return count, err
}

func (r *waitlistRepo) OldestPendingForUpdate(ctx context.Context, productRef string, n int) ([]*entities.WaitlistEntry, error) {
	var rows []models.WaitlistEntry
	err := GetDB(ctx, r.db).
		Where("product_ref = ? AND status = ?", productRef, string(entities.WaitlistStatusPending)).
		Order("priority ASC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	items := make([]*entities.WaitlistEntry, 0, len(rows))
	for i := range rows {
		items = append(items, toWaitlistEntity(&rows[i]))
	}
	return items, nil
}

func (r *waitlistRepo) OldestReadyForEmail(ctx context.Context) (*entities.WaitlistEntry, error) {
	var m models.WaitlistEntry
	err := GetDB(ctx, r.db).
		Where("status = ?", string(entities.WaitlistStatusReadyForEmail)).
		Order("priority ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWaitlistEntity(&m), nil
}

func (r *waitlistRepo) DistinctProductRefsPending(ctx context.Context) ([]string, error) {
	var refs []string
	err := GetDB(ctx, r.db).Model(&models.WaitlistEntry{}).
		Where("status = ?", string(entities.WaitlistStatusPending)).
		Distinct().
		Pluck("product_ref", &refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *waitlistRepo) List(ctx context.Context, productRef string, limit, offset int) ([]*entities.WaitlistEntry, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.WaitlistEntry{})
	if productRef != "" {
		query = query.Where("product_ref = ?", productRef)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	var rows []models.WaitlistEntry
	if err := query.Order("priority ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*entities.WaitlistEntry, 0, len(rows))
	for i := range rows {
		items = append(items, toWaitlistEntity(&rows[i]))
	}
	return items, total, nil
}

func (r *waitlistRepo) Update(ctx context.Context, w *entities.WaitlistEntry) error {
	m := toWaitlistModel(w)
	m.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&models.WaitlistEntry{}).Where("id = ?", w.ID).Updates(map[string]interface{}{
		"status":        m.Status,
		"license_id":    m.LicenseID,
		"retry_count":   m.RetryCount,
		"error_message": m.ErrorMessage,
		"updated_at":    m.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	w.UpdatedAt = m.UpdatedAt
	return nil
}

func toWaitlistModel(w *entities.WaitlistEntry) *models.WaitlistEntry {
	return &models.WaitlistEntry{
		ID:           w.ID,
		OrderID:      w.OrderID,
		CustomerID:   w.CustomerID,
		ProductRef:   w.ProductRef,
		Qty:          w.Qty,
		Status:       string(w.Status),
		Priority:     w.Priority,
		LicenseID:    w.LicenseID,
		RetryCount:   w.RetryCount,
		ErrorMessage: w.ErrorMessage,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

func toWaitlistEntity(m *models.WaitlistEntry) *entities.WaitlistEntry {
	return &entities.WaitlistEntry{
		ID:           m.ID,
		OrderID:      m.OrderID,
		CustomerID:   m.CustomerID,
		ProductRef:   m.ProductRef,
		Qty:          m.Qty,
		Status:       entities.WaitlistStatus(m.Status),
		Priority:     m.Priority,
		LicenseID:    m.LicenseID,
		RetryCount:   m.RetryCount,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
