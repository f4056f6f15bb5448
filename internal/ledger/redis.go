// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Key      string // Set key holding in-flight camera names
}

// Redis keeps the ledger in a Redis set so that fleets split across hosts
// share one view.
type Redis struct {
	client *redis.Client
	key    string
}

var _ Ledger = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Redis{client: client, key: cfg.Key}, nil
}

func (r *Redis) Add(ctx context.Context, name string) error {
	if err := r.client.SAdd(ctx, r.key, name).Err(); err != nil {
		return fmt.Errorf("ledger add: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, name string) error {
	if err := r.client.SRem(ctx, r.key, name).Err(); err != nil {
		return fmt.Errorf("ledger remove: %w", err)
	}
	return nil
}

// List returns the members sorted by name.
func (r *Redis) List(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
