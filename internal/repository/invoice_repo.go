package repository

import (
	"context"
	"errors"
	"time"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) domain.InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).Create(invoice).Error
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// TransitionStatus only ever moves a PENDING invoice; the WHERE clause is the
// state-machine guard, so a lost race or a repeat call surfaces as
// ErrInvalidTransition instead of a second transition.
func (r *invoiceRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to domain.InvoiceStatus, deliveredAt *time.Time) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	updates := map[string]interface{}{"status": to}
	if deliveredAt != nil {
		updates["delivered_at"] = deliveredAt
	}
	res := conn.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, domain.InvoicePending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *invoiceRepository) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *invoiceRepository) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductOutOfStock
	}
	return nil
}

func (r *invoiceRepository) IncrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}
