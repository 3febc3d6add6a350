package redis

import (
	"context"
	"fmt"
	"time"

	"shipease/internal/general/config"
	"shipease/internal/general/logger"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient builds a go-redis client from cfg and verifies connectivity.
func NewClient(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*goredis.Client, error) {
	start := time.Now()

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info(ctx, "redis_connected", "Connected to Redis", map[string]any{
		"addr":        cfg.Redis.Addr,
		"db":          cfg.Redis.DB,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return client, nil
}
