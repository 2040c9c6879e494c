package fcopy

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for out-of-range options or thread counts.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidPath is returned when the source does not exist or has an
	// unsupported type.
	ErrInvalidPath = errors.New("invalid path")
	// ErrCyclicCopy is returned when the target equals or lies inside the source.
	ErrCyclicCopy = errors.New("target is inside source")
	// ErrPathTraversal is returned when a write path would leave the target root.
	ErrPathTraversal = errors.New("path escapes target root")
	// ErrInterrupted is returned when a transfer observes cancellation.
	ErrInterrupted = errors.New("copy interrupted")
	// ErrShutdownTimeout is returned when in-flight tasks fail to drain after a
	// fatal error within the drain timeout.
	ErrShutdownTimeout = errors.New("timed out waiting for copy tasks to finish")
)

// PathError records a rejected path and the reason.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// WalkError is returned when enumerating the source tree fails. The walk stops
// at the first such error.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error { return e.Err }

// TransferFailedError is returned when a file could not be copied after all
// retry attempts. Err is the cause of the last attempt.
type TransferFailedError struct {
	Source   string
	Target   string
	Attempts int
	Err      error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("copy %s to %s failed after %d attempt(s): %v", e.Source, e.Target, e.Attempts, e.Err)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

// FatalError wraps the first error that halted a Copy invocation.
type FatalError struct {
	Source string
	Target string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("copy from %s to %s failed: %v", e.Source, e.Target, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Category classifies an error returned by Copy so that callers can pick
// distinct exit codes.
type Category int

const (
	CategoryNone Category = iota
	CategoryInvalidArgument
	CategoryMissingSource
	CategoryRuntime
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryInvalidArgument:
		return "invalid argument"
	case CategoryMissingSource:
		return "missing source"
	default:
		return "runtime"
	}
}

// CategoryOf returns the category of err. A cyclic copy counts as an invalid
// argument.
func CategoryOf(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrCyclicCopy):
		return CategoryInvalidArgument
	case errors.Is(err, ErrInvalidPath):
		return CategoryMissingSource
	default:
		return CategoryRuntime
	}
}

// interrupted wraps the context's error so that both ErrInterrupted and the
// context error match.
func interrupted(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

// retryable reports whether err may be cured by another attempt.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInterrupted),
		errors.Is(err, ErrPathTraversal),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
