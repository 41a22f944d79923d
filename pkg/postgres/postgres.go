package postgres

import (
	"fmt"
	"log"

	"campus-coin/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// Needed so idempotency-key collisions surface as ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema. The unique indexes on the wallet owner triple and
	// on (idempotency_key, wallet_id) are load-bearing, not decorative.
	err = db.AutoMigrate(&domain.Wallet{}, &domain.Transaction{}, &domain.Invoice{}, &domain.Product{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Connected to PostgreSQL")
	return db, nil
}
