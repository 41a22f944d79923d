package redis

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Options is the slice of redis configuration the ledger cares about. The
// cache only ever holds the owner -> wallet id mapping, so one logical DB
// and a plain addr/password pair is the whole surface.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Connected to Redis")
	return client, nil
}
