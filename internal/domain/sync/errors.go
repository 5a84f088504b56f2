package sync

import "errors"

var (
	// ErrAuth indicates the source rejected our credentials (401/403).
	// Never retried.
	ErrAuth = errors.New("sync: source authentication failed")

	// ErrSourceUnavailable indicates the source stayed unreachable after
	// retries were exhausted. Fatal for the run; the prior snapshot
	// remains authoritative.
	ErrSourceUnavailable = errors.New("sync: source unavailable")

	// ErrMalformedRecord indicates a single unparseable record. The
	// record is skipped and counted; the run continues.
	ErrMalformedRecord = errors.New("sync: malformed record")

	// ErrMalformedPage indicates a structurally broken page envelope.
	// Fatal for the run.
	ErrMalformedPage = errors.New("sync: malformed page")

	// ErrCycleDetected indicates the incoming category tree contains a
	// cycle. Fatal in full-sync mode; the subtree is skipped in
	// incremental mode.
	ErrCycleDetected = errors.New("sync: category cycle detected")

	// ErrSyncAlreadyRunning indicates a run for the same provider and
	// locale is in progress. The caller decides whether to retry later.
	ErrSyncAlreadyRunning = errors.New("sync: sync already running")

	// ErrStoreApplyFailed indicates the store transaction failed and was
	// rolled back. Nothing from the run is visible.
	ErrStoreApplyFailed = errors.New("sync: store apply failed")

	// ErrTimeout indicates the run exceeded its deadline. Treated like
	// ErrSourceUnavailable: abort, roll back, release the lock.
	ErrTimeout = errors.New("sync: run timed out")
)

// IsRunFatal reports whether an error aborts the whole run as opposed to
// a single record.
func IsRunFatal(err error) bool {
	switch {
	case errors.Is(err, ErrAuth),
		errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, ErrMalformedPage),
		errors.Is(err, ErrCycleDetected),
		errors.Is(err, ErrStoreApplyFailed),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}
