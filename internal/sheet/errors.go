package sheet

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTableNotFound means no sheet answers to any accepted name of a table.
	ErrTableNotFound = errors.New("table not found")
	// ErrTransient marks failures worth retrying: throttling, 5xx, timeouts.
	ErrTransient = errors.New("transient store failure")
	// ErrRateLimited is a transient failure where the store rejected the call
	// before applying it, so even non-idempotent writes may be retried.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrTransient)
	// ErrPermanent marks failures that will not go away on retry.
	ErrPermanent = errors.New("permanent store failure")
)

// Kind names the class of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTableNotFound):
		return "table_not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "permanent"
	}
}

// IsTransient reports whether the caller may retry the operation later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classify tags a raw backend error with one of the package sentinels.
// Errors already tagged by a driver pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrTableNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// retryable decides whether a classified error may be retried. Writes that
// are not idempotent only retry when the store never applied them.
func retryable(err error, idempotent bool) bool {
	if idempotent {
		return errors.Is(err, ErrTransient)
	}
	return errors.Is(err, ErrRateLimited)
}
