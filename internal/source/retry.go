package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/bridge-indexer/internal/model"
)

// ErrRetriesExhausted is returned when every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy is a bounded, fixed-backoff retry.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry matches the connectors' observed behaviour: five attempts, a
// short fixed pause.
var DefaultRetry = RetryPolicy{Attempts: 5, Backoff: 500 * time.Millisecond}

// Retry runs fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts. The connector is reconnected between attempts.
// Configuration and context errors are returned at once.
func Retry(ctx context.Context, p RetryPolicy, conn Reconnector, log *slog.Logger, onRetry func(), fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if !retryable(err) {
			return err
		}
		last = err
		if attempt == p.Attempts {
			break
		}
		log.Warn("retrying chain call", "attempt", attempt, "error", err)
		if onRetry != nil {
			onRetry()
		}
		timer := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if conn != nil {
			if rerr := conn.Reconnect(ctx); rerr != nil {
				log.Warn("reconnect failed", "attempt", attempt, "error", rerr)
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.Attempts, last)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, model.ErrConfig):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent stops Retry from retrying err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
