package repository

import (
	"context"
	"fmt"
	"time"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type cacheRepository struct {
	client *redis.Client
}

func NewCacheRepository(client *redis.Client) domain.CacheRepository {
	return &cacheRepository{client: client}
}

func cacheKey(owner domain.OwnerRef, currency domain.Currency) string {
	return fmt.Sprintf("wallet-id:%s:%s:%s", owner.Type, owner.ID, currency)
}

// Only the owner-triple -> wallet id mapping is cached. The mapping never
// changes for a live wallet, so there is nothing to invalidate and no stale
// balance can ever be served from here.
func (r *cacheRepository) GetWalletID(ctx context.Context, owner domain.OwnerRef, currency domain.Currency) (uuid.UUID, bool, error) {
	val, err := r.client.Get(ctx, cacheKey(owner, currency)).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil // cache miss
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (r *cacheRepository) SetWalletID(ctx context.Context, owner domain.OwnerRef, currency domain.Currency, walletID uuid.UUID) error {
	return r.client.Set(ctx, cacheKey(owner, currency), walletID.String(), 24*time.Hour).Err()
}
