// Package redis - Redis-адаптеры: кэш платежей, idempotency-ключи и
// распределённый rate limit.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config - настройки подключения к Redis.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// NewClient создаёт клиент и проверяет соединение.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.InfoContext(ctx, "redis connection established",
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
	)

	return client, nil
}

// HealthCheck проверяет доступность Redis для /ready.
type HealthCheck struct {
	client goredis.UniversalClient
}

func NewHealthCheck(client goredis.UniversalClient) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

func (h *HealthCheck) Name() string {
	return "redis"
}

func prefixed(prefix, kind, key string) string {
	if prefix == "" {
		prefix = "payledger"
	}
	return prefix + ":" + kind + ":" + key
}
