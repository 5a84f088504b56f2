package supplier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/backend/internal/domain/sync"
)

// transientError marks a failure worth retrying. RetryAfter, when set,
// overrides the computed backoff with the delay the server asked for.
type transientError struct {
	err        error
	retryAfter time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// transient wraps err as retryable
func transient(err error) error {
	return &transientError{err: err}
}

// transientAfter wraps err as retryable with a server-requested delay
func transientAfter(err error, after time.Duration) error {
	return &transientError{err: err, retryAfter: after}
}

// RetryPolicy retries transient failures with exponential backoff. Errors
// not marked transient are returned as-is on the first attempt; an
// exhausted budget surfaces as ErrSourceUnavailable.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// sleep is replaceable in tests; nil means real sleeping
	sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op, retrying transient failures until the budget is spent
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		var te *transientError
		if !errors.As(err, &te) {
			return err
		}
		lastErr = te.err

		if attempt >= p.MaxRetries {
			return fmt.Errorf("%w: %d attempts: %v", sync.ErrSourceUnavailable, attempt+1, lastErr)
		}

		delay := p.backoff(attempt)
		if te.retryAfter > 0 {
			delay = te.retryAfter
		}
		if err := p.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// backoff computes the delay before the given retry attempt
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
