// Package reactor implements the per-thread event loop: wake channel, timer
// store, non-blocking socket handles, and the active-object run queue.
package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions callers branch on. Matched with
// errors.Is; wrap with WrapError when a caller needs surrounding context.
var (
	// ErrShutdown is returned by Push once the reactor has started
	// terminating; new objects are no longer accepted.
	ErrShutdown = errors.New("reactor: shutting down")

	// ErrCapacityExceeded is returned by Push when the reactor's slot table
	// is full. The caller retains ownership of the rejected object.
	ErrCapacityExceeded = errors.New("reactor: capacity exceeded")

	// ErrClosed is returned by Run when the reactor is no longer in its
	// initial state (it is already running, or has terminated).
	ErrClosed = errors.New("reactor: closed")

	// ErrFDOutOfRange is returned by the notifier's add when a socket's fd
	// exceeds maxTrackedFDs, the direct-indexing bound used to detect
	// double-add/double-remove bugs.
	ErrFDOutOfRange = errors.New("reactor: fd out of range")

	// ErrFDAlreadyRegistered is returned by the notifier's add when fd is
	// already registered.
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")

	// ErrFDNotRegistered is returned by the notifier's modify/remove on an
	// fd that was never added, or already removed.
	ErrFDNotRegistered = errors.New("reactor: fd not registered")
)

// NotifierError wraps a failure returned by the readiness notifier during
// socket registration. It is not fatal to the reactor: the affected socket
// is reported ErrDone, the slot is re-enqueued, and the error is readable
// via ObjectRuntime.SocketErr. The reactor does not close the object
// itself; that is left to the object's own disposition.
type NotifierError struct {
	Op  string // "add", "modify", "remove"
	Fd  int
	Err error
}

func (e *NotifierError) Error() string {
	return fmt.Sprintf("reactor: notifier %s fd=%d: %v", e.Op, e.Fd, e.Err)
}

func (e *NotifierError) Unwrap() error { return e.Err }

// WrapError wraps an error with a message, preserving errors.Is/As against
// cause.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
