package sync

import (
	"context"
	"fmt"
)

// LockKey identifies the exclusive scope of a run: one provider in one
// locale. Runs for different keys may overlap; runs for the same key are
// rejected, never queued.
type LockKey struct {
	Provider string
	Locale   string
}

// String returns the canonical key form used by lock backends
func (k LockKey) String() string {
	return fmt.Sprintf("%s:%s", k.Provider, k.Locale)
}

// RunLocker is the port for the run-scoped exclusive lock. TryAcquire is
// non-blocking: a held lock returns false immediately and the caller maps
// that to ErrSyncAlreadyRunning.
type RunLocker interface {
	TryAcquire(ctx context.Context, key LockKey) (bool, error)
	Release(ctx context.Context, key LockKey) error
}
