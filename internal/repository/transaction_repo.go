package repository

import (
	"context"
	"errors"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *gorm.DB, transaction *domain.Transaction) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).Create(transaction).Error
}

func (r *transactionRepository) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) ([]domain.Transaction, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	var rows []domain.Transaction
	err := conn.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("amount asc"). // debit row first
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var row domain.Transaction
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *transactionRepository) FindRollbackForReference(ctx context.Context, tx *gorm.DB, refType domain.ReferenceType, refID string) (*domain.Transaction, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	var row domain.Transaction
	err := conn.WithContext(ctx).
		Where("type IN ? AND reference_type = ? AND reference_id = ?",
			[]domain.TransactionType{domain.TxRollback, domain.TxProductRefund}, refType, refID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *transactionRepository) FindByReference(ctx context.Context, refType domain.ReferenceType, refID string, txType domain.TransactionType) ([]domain.Transaction, error) {
	var rows []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ? AND type = ?", refType, refID, txType).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *transactionRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, page domain.PageRequest) (*domain.Page, error) {
	if page.Limit <= 0 || page.Limit > 100 {
		page.Limit = 20
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	q := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("wallet_id = ?", walletID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []domain.Transaction
	err := q.Order("created_at desc, id desc").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &domain.Page{Items: items, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

func (r *transactionRepository) SumByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
