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

type orderRepo struct {
	db *gorm.DB
}

// NewOrderRepository builds an Order repository backed by GORM, resolving
// the active transaction and FOR UPDATE lock state from ctx via GetDB.
func NewOrderRepository(db *gorm.DB) domainrepos.OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *entities.Order) error {
	if o.ID == uuid.Nil {
		o.ID = utils.GenerateUUIDv7()
	}
	m, err := toOrderModel(o)
	if err != nil {
		return err
	}
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	o.CreatedAt = m.CreatedAt
	o.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Order, error) {
	var m models.Order
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toOrderEntity(&m)
}

func (r *orderRepo) Update(ctx context.Context, o *entities.Order) error {
	m, err := toOrderModel(o)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]interface{}{
		"customer_id":    m.CustomerID,
		"product_ref":    m.ProductRef,
		"qty":            m.Qty,
		"subtotal_cents": m.SubtotalCents,
		"discount_cents": m.DiscountCents,
		"tax_cents":      m.TaxCents,
		"grand_total":    m.GrandTotal,
		"currency":       m.Currency,
		"status":         m.Status,
		"shipping_info":  m.ShippingInfo,
		"meta":           m.Meta,
		"updated_at":     m.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	o.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *orderRepo) List(ctx context.Context, limit, offset int) ([]*entities.Order, int64, error) {
	var rows []models.Order
	var total int64

	query := GetDB(ctx, r.db).Model(&models.Order{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*entities.Order, 0, len(rows))
	for i := range rows {
		e, err := toOrderEntity(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}

func toOrderModel(o *entities.Order) (*models.Order, error) {
	shippingJSON, err := json.Marshal(o.ShippingInfo)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(o.Meta)
	if err != nil {
		return nil, err
	}
	return &models.Order{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		ProductRef:    o.ProductRef,
		Qty:           o.Qty,
		SubtotalCents: o.SubtotalCents,
		DiscountCents: o.DiscountCents,
		TaxCents:      o.TaxCents,
		GrandTotal:    o.GrandTotal,
		Currency:      o.Currency,
		Status:        string(o.Status),
		ShippingInfo:  string(shippingJSON),
		Meta:          string(metaJSON),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

func toOrderEntity(m *models.Order) (*entities.Order, error) {
	o := &entities.Order{
		ID:            m.ID,
		CustomerID:    m.CustomerID,
		ProductRef:    m.ProductRef,
		Qty:           m.Qty,
		SubtotalCents: m.SubtotalCents,
		DiscountCents: m.DiscountCents,
		TaxCents:      m.TaxCents,
		GrandTotal:    m.GrandTotal,
		Currency:      m.Currency,
		Status:        entities.OrderStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.ShippingInfo != "" {
		if err := json.Unmarshal([]byte(m.ShippingInfo), &o.ShippingInfo); err != nil {
			return nil, err
		}
	}
	if m.Meta != "" {
		if err := json.Unmarshal([]byte(m.Meta), &o.Meta); err != nil {
			return nil, err
		}
	} else {
		o.Meta = map[string]interface{}{}
	}
	return o, nil
}
