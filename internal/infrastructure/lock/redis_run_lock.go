package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront/backend/internal/domain/sync"
)

// RedisRunLock implements RunLocker on Redis. Suitable for distributed
// deployments where multiple instances must agree on which runs are in
// flight.
type RedisRunLock struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ sync.RunLocker = (*RedisRunLock)(nil)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisRunLock creates a Redis-based run lock
func NewRedisRunLock(cfg RedisConfig, ttl time.Duration) (*RedisRunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRunLock{
		client:    client,
		keyPrefix: "sync:lock:",
		ttl:       ttl,
	}, nil
}

// NewRedisRunLockWithClient creates a lock with an existing Redis client.
// This is useful for testing or when sharing a client across components.
func NewRedisRunLockWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = "sync:lock:"
	}
	return &RedisRunLock{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// TryAcquire attempts to take the lock without blocking. SETNX with a TTL
// makes the acquire atomic and self-expiring: a crashed holder's lock
// frees itself once the TTL passes.
func (l *RedisRunLock) TryAcquire(ctx context.Context, key sync.LockKey) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.keyPrefix+key.String(), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock %s: %w", key, err)
	}
	return acquired, nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *RedisRunLock) Release(ctx context.Context, key sync.LockKey) error {
	if err := l.client.Del(ctx, l.keyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client
func (l *RedisRunLock) Close() error {
	return l.client.Close()
}
