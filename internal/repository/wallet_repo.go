package repository

import (
	"context"
	"errors"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) domain.WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(ctx context.Context, tx *gorm.DB, wallet *domain.Wallet) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	if err := conn.WithContext(ctx).Create(wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrWalletExists
		}
		return err
	}
	return nil
}

func (r *walletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepository) GetByOwner(ctx context.Context, owner domain.OwnerRef, currency domain.Currency) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.db.WithContext(ctx).
		First(&wallet, "owner_type = ? AND owner_id = ? AND currency = ?", owner.Type, owner.ID, currency).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// UpdateBalance is the optimistic conditional write: the row is touched only
// if its version is still fromVersion, and the same statement bumps the
// version. Zero affected rows means a concurrent writer got there first.
func (r *walletRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, id uuid.UUID, newBalance decimal.Decimal, fromVersion int64) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id = ? AND version = ?", id, fromVersion).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": fromVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *walletRepository) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
