// Package types defines error types
package types

import (
	"errors"
	"time"
)

// Predefined errors
var (
	// ErrInvalidPolicy indicates a retry policy that cannot be scheduled
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrSequenceCancelled indicates the retry sequence was cancelled by its owner
	ErrSequenceCancelled = errors.New("retry sequence cancelled")

	// ErrSequenceRunning indicates a manual retry was requested while attempts are still pending
	ErrSequenceRunning = errors.New("retry sequence still running")

	// ErrMonitorStopped indicates the network monitor is not running
	ErrMonitorStopped = errors.New("network monitor stopped")

	// ErrProbeTimeout indicates the connectivity probe did not answer in time
	ErrProbeTimeout = errors.New("connectivity probe timeout")

	// ErrInvalidConfig indicates a configuration value is out of range
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PermanentError marks an error that must not be retried.
// The coordinator still records it in the attempt history before giving up.
type PermanentError struct {
	Err error
}

// Error implements the error interface
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the coordinator stops retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error was marked permanent
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// RetryAfterError carries a server-suggested delay, such as a Retry-After header
type RetryAfterError struct {
	Err        error
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RetryAfterError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// GetRetryDelay returns the suggested retry delay
func GetRetryDelay(err error) time.Duration {
	var retryAfter *RetryAfterError
	if errors.As(err, &retryAfter) {
		return retryAfter.RetryAfter
	}
	return 0
}
