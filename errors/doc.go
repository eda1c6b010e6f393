// Package errors provides standardized error handling patterns for semlink.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or violated precondition,
// non-retryable) and Fatal (unrecoverable, stop processing).
//
// The classes line up with how the access layer treats failures:
//
//   - Transient: connect failures, mid-session closes and connect timeouts. The broker
//     manager absorbs these into its reconnect state machine and only reports them to
//     observers.
//   - Invalid: operations attempted without a live transport (ErrNotConnected), updates
//     of a missing key (ErrKeyNotFound), malformed topic patterns, or use of a handle that
//     was never initialized (ErrNotInitialized). These fail fast to the caller.
//   - Fatal: the pool cannot produce a healthy resource (ErrResourceExhausted) or the
//     configuration is unusable.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Manager", "dial", "establish transport")
//	errors.WrapInvalid(err, "Store", "Update", "check existence")
//	errors.WrapFatal(err, "Pool", "With", "acquire healthy resource")
//
// The generic Wrap() keeps whatever classification the wrapped error already has.
//
// # Integration with errors.As/Is
//
// Sentinels survive wrapping, so callers match on them directly:
//
//	if errors.Is(err, errors.ErrKeyNotFound) {
//	    // create instead of update
//	}
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    slog.Warn("operation failed", "component", ce.Component, "class", ce.Class)
//	}
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified as Transient.
package errors
