package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/estrella/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisDB wraps the Redis client backing the day-keyed quota counters
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB creates a new Redis connection
func NewRedisDB(cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDB{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisDB) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
