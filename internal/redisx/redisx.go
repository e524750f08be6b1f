// Package redisx opens the optional Redis client shared by the document
// store, the skip cache and the rate limiter.
package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"beacon-presence-api/internal/config"
)

type Client = redis.Client

// Open returns a nil client when REDIS_ADDR is unset.
func Open(cfg *config.Config) (*Client, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, func() {}, err
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

// Ping reports whether rdb answers within timeout. A nil client is healthy.
func Ping(ctx context.Context, rdb *Client, timeout time.Duration) error {
	if rdb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
