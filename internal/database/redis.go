package database

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/stockdash/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisClient wraps the shared redis connection used by the response cache.
type RedisClient struct {
	Client *redis.Client
	logger logrus.FieldLogger
}

// NewRedisConnection dials redis and verifies it answers a PING.
func NewRedisConnection(cfg config.RedisConfig, logger logrus.FieldLogger) (*RedisClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}

	logger.WithField("addr", cfg.RedisAddr()).Info("Successfully connected to Redis")

	return &RedisClient{Client: rdb, logger: logger}, nil
}

// NewRedisClient wraps an existing client, e.g. one pointed at miniredis.
func NewRedisClient(client *redis.Client, logger logrus.FieldLogger) *RedisClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisClient{Client: client, logger: logger}
}

func (r *RedisClient) Close() {
	if r == nil || r.Client == nil {
		return
	}
	if err := r.Client.Close(); err != nil {
		r.logger.WithError(err).Warn("Failed to close Redis connection")
		return
	}
	r.logger.Info("Redis connection closed")
}

// HealthCheck pings redis.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return r.Client.Ping(ctx).Err()
}
