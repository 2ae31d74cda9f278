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

type licenseRepo struct {
	db *gorm.DB
}

// NewLicenseRepository builds a License repository. Callers that need a
// row-level exclusive lock pass a ctx derived from UnitOfWork.WithLock;
// GetDB translates that into a FOR UPDATE clause.
func NewLicenseRepository(db *gorm.DB) domainrepos.LicenseRepository {
	return &licenseRepo{db: db}
}

func (r *licenseRepo) Create(ctx context.Context, l *entities.License) error {
	if l.ID == uuid.Nil {
		l.ID = utils.GenerateUUIDv7()
	}
	m := toLicenseModel(l)
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	l.CreatedAt = m.CreatedAt
	l.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *licenseRepo) BulkCreate(ctx context.Context, licenses []*entities.License) error {
	if len(licenses) == 0 {
		return nil
	}
	rows := make([]models.License, 0, len(licenses))
	for _, l := range licenses {
		if l.ID == uuid.Nil {
			l.ID = utils.GenerateUUIDv7()
		}
		rows = append(rows, *toLicenseModel(l))
	}
	if err := GetDB(ctx, r.db).CreateInBatches(&rows, 100).Error; err != nil {
		return err
	}
	for i := range licenses {
		licenses[i].CreatedAt = rows[i].CreatedAt
		licenses[i].UpdatedAt = rows[i].UpdatedAt
	}
	return nil
}

func (r *licenseRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.License, error) {
	var m models.License
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toLicenseEntity(&m), nil
}

func (r *licenseRepo) FirstAvailable(ctx context.Context, productRef string) (*entities.License, error) {
	var m models.License
	err := GetDB(ctx, r.db).
		Where("product_ref = ? AND status = ?", productRef, string(entities.LicenseStatusAvailable)).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toLicenseEntity(&m), nil
}

func (r *licenseRepo) AvailableForUpdate(ctx context.Context, productRef string, n int) ([]*entities.License, error) {
	var rows []models.License
	err := GetDB(ctx, r.db).
		Where("product_ref = ? AND status = ?", productRef, string(entities.LicenseStatusAvailable)).
		Order("created_at ASC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	items := make([]*entities.License, 0, len(rows))
	for i := range rows {
		items = append(items, toLicenseEntity(&rows[i]))
	}
	return items, nil
}

func (r *licenseRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*entities.License, error) {
	var m models.License
	if err := GetDB(ctx, r.db).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toLicenseEntity(&m), nil
}

func (r *licenseRepo) CountByStatus(ctx context.Context, productRef string, status entities.LicenseStatus) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&models.License{}).
		Where("product_ref = ? AND status = ?", productRef, string(status)).
		Count(&count).Error
	return count, err
}

func (r *licenseRepo) List(ctx context.Context, productRef string, status entities.LicenseStatus, limit, offset int) ([]*entities.License, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.License{})
	if productRef != "" {
		query = query.Where("product_ref = ?", productRef)
	}
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	var rows []models.License
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*entities.License, 0, len(rows))
	for i := range rows {
		items = append(items, toLicenseEntity(&rows[i]))
	}
	return items, total, nil
}

func (r *licenseRepo) Update(ctx context.Context, l *entities.License) error {
	m := toLicenseModel(l)
	m.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&models.License{}).Where("id = ?", l.ID).Updates(map[string]interface{}{
		"product_ref":  m.ProductRef,
		"license_key":  m.LicenseKey,
		"status":       m.Status,
		"order_id":     m.OrderID,
		"reserved_at":  m.ReservedAt,
		"sold_at":      m.SoldAt,
		"instructions": m.Instructions,
		"updated_at":   m.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	l.UpdatedAt = m.UpdatedAt
	return nil
}

func toLicenseModel(l *entities.License) *models.License {
	return &models.License{
		ID:           l.ID,
		ProductRef:   l.ProductRef,
		LicenseKey:   l.LicenseKey,
		Status:       string(l.Status),
		OrderID:      l.OrderID,
		ReservedAt:   l.ReservedAt,
		SoldAt:       l.SoldAt,
		Instructions: l.Instructions,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func toLicenseEntity(m *models.License) *entities.License {
	return &entities.License{
		ID:           m.ID,
		ProductRef:   m.ProductRef,
		LicenseKey:   m.LicenseKey,
		Status:       entities.LicenseStatus(m.Status),
		OrderID:      m.OrderID,
		ReservedAt:   m.ReservedAt,
		SoldAt:       m.SoldAt,
		Instructions: m.Instructions,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
