package backoff

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/c360/semlink/errors"
)

// NonRetryableError marks an error that ends a Retry loop at once
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable marks err so Retry gives up on it. Nil stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return stderrors.As(err, &nre)
}

// giveUp reports whether another attempt cannot help: explicitly marked errors and
// errors classified as invalid or fatal
func giveUp(err error) bool {
	if IsNonRetryable(err) {
		return true
	}
	var ce *errors.ClassifiedError
	return stderrors.As(err, &ce) && ce.Class != errors.ErrorTransient
}

// Retry calls fn until it succeeds, attempts calls have been made, fn returns an error
// that giveUp rejects, or ctx ends. Waits between calls follow s.
func Retry(ctx context.Context, s State, attempts int, fn func(context.Context) error) error {
	attempts = max(attempts, 1)

	var wait time.Duration
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case giveUp(err):
			return err
		case ctx.Err() != nil:
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		case attempt >= attempts:
			return fmt.Errorf("retry failed after %d attempts: %w", attempts, err)
		}

		wait, s = s.Next()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled waiting for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}
}
