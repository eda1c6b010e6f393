// Package errors provides standardized error handling patterns for semlink components.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass tells callers how to react to a failure
type ErrorClass int

const (
	// ErrorTransient failures may succeed on retry
	ErrorTransient ErrorClass = iota
	// ErrorInvalid failures come from bad input, a violated precondition or configuration
	ErrorInvalid
	// ErrorFatal failures should stop processing
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	}
	return "unknown"
}

// Sentinels shared across packages
var (
	ErrNotInitialized = errors.New("component not initialized")

	ErrNotConnected      = errors.New("not connected to broker")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	ErrInvalidPattern = errors.New("invalid topic pattern")
	ErrInvalidTopic   = errors.New("invalid topic")

	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")
	ErrParsingFailed = errors.New("parsing failed")

	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyNotFound        = errors.New("key not found")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	ErrResourceExhausted = errors.New("resource exhausted")
	ErrPoolClosed        = errors.New("pool closed")
)

// sentinelClasses maps known sentinels to their class. Sentinels not listed here
// (ErrPoolClosed) are classified by message only.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionTimeout, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrStorageUnavailable, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},

	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrDataCorrupted, ErrorFatal},
	{ErrResourceExhausted, ErrorFatal},

	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrInvalidPattern, ErrorInvalid},
	{ErrInvalidTopic, ErrorInvalid},
	{ErrKeyNotFound, ErrorInvalid},
	{ErrNotInitialized, ErrorInvalid},
	{ErrNotConnected, ErrorInvalid},
}

// messageHints classify foreign errors (driver and network errors) by their text
var messageHints = map[ErrorClass][]string{
	ErrorTransient: {"timeout", "connection", "network", "temporary", "unavailable", "busy", "retry"},
	ErrorFatal:     {"fatal", "panic", "corrupted", "invalid config", "missing config", "out of memory"},
}

// ClassifiedError carries a class and the component/operation that produced it
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// known reports the class of a ClassifiedError or a registered sentinel in err's chain
func known(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	return 0, false
}

func hinted(err error, class ErrorClass) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range messageHints[class] {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func hasClass(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}
	if c, ok := known(err); ok {
		return c == class
	}
	return hinted(err, class)
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool { return hasClass(err, ErrorTransient) }

// IsFatal reports whether err should stop processing
func IsFatal(err error) bool { return hasClass(err, ErrorFatal) }

// IsInvalid reports whether err comes from bad input or a violated precondition
func IsInvalid(err error) bool { return hasClass(err, ErrorInvalid) }

// Classify returns the class of err. Nil and unrecognised errors are transient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if c, ok := known(err); ok {
		return c
	}
	if hinted(err, ErrorFatal) && !hinted(err, ErrorTransient) {
		return ErrorFatal
	}
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap adds context in the form "component.method: action failed: err".
// The class of err, if any, is kept.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return newClassified(class, wrapped, component, method, wrapped.Error())
}

// WrapTransient wraps err with context and marks it transient
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}
