// Package netio implements the socket, pipe, and DNS resolver I/O
// objects of spec.md §4.7-§4.10 and §4.13, driven by a reactor.Reactor's
// readiness-based poller.
package netio

import "errors"

// Sentinel errors surfaced on token completion (spec.md §7's
// IOError/Timeout/Cancelled taxonomy, specialized to socket/pipe
// failure modes).
var (
	// ErrConnectionAborted is returned for queued writes failed by a
	// shutdown or a reset peer (spec.md §4.7 "shutdown fails all queued
	// writes with ConnectionAborted").
	ErrConnectionAborted = errors.New("netio: connection aborted")
	// ErrBrokenPipe is returned for writes to a pipe whose write end has
	// been shut down (spec.md §4.10 "shutdown-write ... fails pending
	// writes with BrokenPipe").
	ErrBrokenPipe = errors.New("netio: broken pipe")
	// ErrNotSupported is returned for operations the channel does not
	// support (spec.md §4.8 "renegotiation ... surfaces as
	// NotSupported"; a read-only pipe's write, a write-only pipe's
	// read).
	ErrNotSupported = errors.New("netio: operation not supported")
	// ErrChannelClosed is returned for operations attempted on a channel
	// past Closed.
	ErrChannelClosed = errors.New("netio: channel closed")
	// ErrRateLimited is returned when a DNS lookup is rejected by the
	// resolver's rate limiter before ever reaching the network.
	ErrRateLimited = errors.New("netio: resolve rate limited")
)
