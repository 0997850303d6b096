package disposer

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrInvalidArgument reports a missing or ill-typed argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDisposed is returned when adding to a registry that has already
	// been disposed. The rejected value is disposed immediately.
	ErrDisposed = errors.New("registry disposed")

	// ErrCleanupFailure matches any *CleanupError.
	ErrCleanupFailure = errors.New("cleanup failure")
)

// CleanupError aggregates every cleanup that failed during one disposal pass.
type CleanupError struct {
	err error
}

func newCleanupError(errs error) error {
	if errs == nil {
		return nil
	}
	return &CleanupError{err: errs}
}

// Errors returns the individual cleanup failures in the order they occurred.
func (e *CleanupError) Errors() []error {
	return multierr.Errors(e.err)
}

func (e *CleanupError) Error() string {
	errs := e.Errors()
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d cleanup(s) failed: %s", len(errs), strings.Join(msgs, "; "))
}

func (e *CleanupError) Is(target error) bool {
	return target == ErrCleanupFailure
}

func (e *CleanupError) Unwrap() []error {
	return e.Errors()
}
