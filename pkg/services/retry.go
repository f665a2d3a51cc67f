package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/growbal/discovery/ent"
)

// retryTransient runs op with jittered exponential backoff, retrying up to
// 3 attempts total. Domain outcomes (not found, constraint violations,
// context cancellation) are never retried — only storage/network blips are.
func retryTransient(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}

// isTransient classifies an error as a retryable storage blip.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrSessionClosed) {
		return false
	}
	if ent.IsNotFound(err) || ent.IsConstraintError(err) || IsValidationError(err) {
		return false
	}
	return true
}
