package store

import (
	"errors"
	"fmt"
)

// ErrSchedulerClosed is returned when deferred work can no longer be queued.
var ErrSchedulerClosed = errors.New("store: scheduler closed")

// ErrDestroyed is returned by operations that need a live store.
var ErrDestroyed = errors.New("store: destroyed")

// DestroyError reports cleanup failures collected during Destroy.
//
// Destroy runs every cleanup even when some fail. Err is the first failure
// encountered (cleanups run in reverse registration order) and Owner names the
// plugin or listener that registered it.
type DestroyError struct {
	Owner    string
	Failures int
	Err      error
}

// Error implements the error interface.
func (e *DestroyError) Error() string {
	if e.Failures > 1 {
		return fmt.Sprintf("store: destroy: cleanup %q failed: %v (and %d more)", e.Owner, e.Err, e.Failures-1)
	}
	return fmt.Sprintf("store: destroy: cleanup %q failed: %v", e.Owner, e.Err)
}

// Unwrap returns the first cleanup failure.
func (e *DestroyError) Unwrap() error {
	return e.Err
}

// IsDestroyError reports whether err carries a DestroyError.
func IsDestroyError(err error) bool {
	var de *DestroyError
	return errors.As(err, &de)
}
