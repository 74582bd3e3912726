package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis when an address is configured. A nil
// client is a valid result: coordination that depends on Redis degrades to
// the database-level compare-and-set guards.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisLocker provides best-effort advisory locks via SET NX with a TTL.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps a connected Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock acquires the key for ttl; false means another holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
}

// Unlock releases the key.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, "lock:"+key).Err()
}
