// Package chanx implements the one-shot, unbounded MPSC, and bounded
// MPMC channel variants of spec.md §3/§4.14, plus Promise (§3/§4/F).
package chanx

import "errors"

var (
	// ErrChannelClosed is returned/observed when an operation is attempted
	// on a channel whose peer has gone away.
	ErrChannelClosed = errors.New("chanx: channel closed")

	// ErrCancelled is observed by a one-shot receiver polled after its
	// sender was dropped without sending.
	ErrCancelled = errors.New("chanx: cancelled")

	// ErrInvalidChannelState names channel-state misuse. No channel in
	// this package returns it: a OneShotReceiver polled again after
	// delivering its value reports future.ErrInvalidPoll.
	ErrInvalidChannelState = errors.New("chanx: invalid channel state")
)
