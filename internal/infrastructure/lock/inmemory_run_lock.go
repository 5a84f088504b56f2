package lock

import (
	"context"
	gosync "sync"
	"time"

	"github.com/storefront/backend/internal/domain/sync"
)

// InMemoryRunLock implements RunLocker with process-local state. Suitable
// for single-instance deployments and tests; multi-replica deployments
// need the Redis implementation.
type InMemoryRunLock struct {
	mu    gosync.Mutex
	held  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

var _ sync.RunLocker = (*InMemoryRunLock)(nil)

// NewInMemoryRunLock creates an in-memory run lock. Locks expire after
// ttl so a crashed run cannot block syncing forever.
func NewInMemoryRunLock(ttl time.Duration) *InMemoryRunLock {
	return &InMemoryRunLock{
		held:  make(map[string]time.Time),
		ttl:   ttl,
		clock: time.Now,
	}
}

// TryAcquire attempts to take the lock without blocking
func (l *InMemoryRunLock) TryAcquire(ctx context.Context, key sync.LockKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expiry, ok := l.held[key.String()]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[key.String()] = now.Add(l.ttl)
	return true, nil
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *InMemoryRunLock) Release(ctx context.Context, key sync.LockKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key.String())
	return nil
}
