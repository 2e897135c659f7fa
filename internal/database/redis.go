package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dm-service/internal/config"
)

// NewRedis connects to redis and verifies the connection with a ping.
// Redis backs both the presence store and the cross-process broadcast
// transport, so a failure here is surfaced to the caller instead of
// being swallowed.
func NewRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
