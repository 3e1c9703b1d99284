package reactor

import (
	"errors"
	"fmt"
)

// CancelReason classifies why a pending operation was torn down (spec.md
// §5: "Four reasons: Unknown, ExecutorShutdown, IOObjectShutdown,
// UserCancel").
type CancelReason uint8

const (
	// CancelUnknown is the zero value; no component should normally
	// produce it, it exists for completeness and defensive defaults.
	CancelUnknown CancelReason = iota
	// CancelExecutorShutdown marks a cancellation caused by the
	// executor stopping every registered watcher.
	CancelExecutorShutdown
	// CancelIOObjectShutdown marks a cancellation caused by closing
	// the owning I/O object.
	CancelIOObjectShutdown
	// CancelUserCancel marks a cancellation the caller requested for a
	// single pending operation (a Cancel call on its handle).
	CancelUserCancel
)

func (r CancelReason) String() string {
	switch r {
	case CancelExecutorShutdown:
		return "executor shutdown"
	case CancelIOObjectShutdown:
		return "io object shutdown"
	case CancelUserCancel:
		return "user cancel"
	default:
		return "unknown"
	}
}

// CancelError is the error a future observes when a pending operation
// is cancelled instead of completing normally.
type CancelError struct {
	Reason CancelReason
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("reactor: cancelled: %s", e.Reason)
}

// ErrCancelled matches any *CancelError via errors.Is, regardless of
// reason.
var ErrCancelled = errors.New("reactor: cancelled")

func (e *CancelError) Is(target error) bool {
	return target == ErrCancelled
}

// NewCancelError builds a *CancelError for the given reason.
func NewCancelError(reason CancelReason) error {
	return &CancelError{Reason: reason}
}

// ErrInvalidPoll mirrors future.ErrInvalidPoll. No future in this
// package returns it: reactor-owned leaf futures report their terminal
// result again when re-polled, and Timeout returns future.ErrInvalidPoll.
var ErrInvalidPoll = errors.New("reactor: poll after terminal state")

// ErrTimeout is returned by Timeout's combinator when the timer side
// fires before the raced future.
var ErrTimeout = errors.New("reactor: timeout")

// ErrReactorStopped names work submitted after the reactor has exited
// its run loop. Execute and Spawn do not return it; a runnable queued
// after Run has returned is never run.
var ErrReactorStopped = errors.New("reactor: stopped")
