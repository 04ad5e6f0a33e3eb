package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNetwork marks failures to reach a remote backend.
	ErrNetwork = errors.New("network error")

	// ErrCorrupt marks entries that cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// RetryableError marks an error as transient.
type RetryableError struct{ Err error }

// Retryable marks err as transient. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or an error it wraps, is transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Backoff retries transient failures with exponentially growing pauses.
type Backoff struct {
	Attempts int           // total calls, at least 1
	Delay    time.Duration // pause after the first failure, doubled after each
}

// DefaultBackoff is used when connecting to remote caches.
var DefaultBackoff = Backoff{Attempts: 3, Delay: time.Second}

// Do calls fn until it succeeds, returns an error not marked Retryable, or
// the attempts run out. It returns ctx.Err() if ctx ends while waiting.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	delay := b.Delay
	var err error
	for i := 0; i < max(b.Attempts, 1); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}
