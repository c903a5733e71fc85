package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification with errors.Is.
var (
	// ErrComputeFailed wraps a compute function's own error.
	ErrComputeFailed = errors.New("cache compute failed")

	// ErrComputeTimeout means the caller's deadline expired before the
	// computation finished. Distinct from ErrComputeFailed so callers can
	// tell "slow" from "broken".
	ErrComputeTimeout = errors.New("cache compute timed out")
)

// ComputeError carries the failing key and the compute function's error.
// The failed result is never cached.
type ComputeError struct {
	Key   string
	Cause error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute for %q failed: %v", e.Key, e.Cause)
}

func (e *ComputeError) Unwrap() error { return e.Cause }

func (e *ComputeError) Is(target error) bool { return target == ErrComputeFailed }

// TimeoutError reports a compute that outlived the caller's deadline.
type TimeoutError struct {
	Key   string
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("compute for %q timed out: %v", e.Key, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

func (e *TimeoutError) Is(target error) bool { return target == ErrComputeTimeout }

// IsTimeout reports whether err is a compute timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrComputeTimeout) }
