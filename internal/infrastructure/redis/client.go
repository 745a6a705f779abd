package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/eventrelay/internal/infrastructure/config"
	"github.com/cassiomorais/eventrelay/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// NewClient creates a new Redis client. The initial ping is retried with
// backoff so startup order against the broker does not matter.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	connectCfg := retry.Config{
		MaxAttempts:  uint(cfg.ConnectRetries),
		InitialDelay: cfg.ConnectRetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if connectCfg.MaxAttempts == 0 {
		connectCfg.MaxAttempts = 5
	}
	if connectCfg.InitialDelay <= 0 {
		connectCfg.InitialDelay = 1 * time.Second
	}

	if err := retry.Do(ctx, connectCfg, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
