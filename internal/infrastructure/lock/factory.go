package lock

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// NewRunLocker creates the run locker named by the sync configuration.
// The memory backend is process-local; the redis backend coordinates
// locks across replicas.
func NewRunLocker(cfg *config.Config, logger *zap.Logger) (sync.RunLocker, error) {
	switch cfg.Sync.LockBackend {
	case "memory":
		logger.Info("Using in-memory run locks")
		return NewInMemoryRunLock(cfg.Sync.LockTTL), nil
	case "redis":
		locker, err := NewRedisRunLock(RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Sync.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis run lock: %w", err)
		}
		logger.Info("Using Redis run locks",
			zap.String("addr", cfg.Redis.RedisAddr()))
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Sync.LockBackend)
	}
}
