package future

import "errors"

// Sentinel errors for the future/stream protocol (spec.md §7).
//
// Grounded on eventloop/errors.go's style: a small, flat set of
// errors.New sentinels matched with errors.Is, rather than a bespoke
// type-erased error carrier — Go's error interface (plus errors.As for
// downcast) already gives Poll's error slot everything spec.md §3 asks
// of it.
var (
	// ErrInvalidPoll is returned (or, in the rare leaf implementation,
	// panicked with) when a Future is polled again after it has already
	// reached a terminal state.
	ErrInvalidPoll = errors.New("future: invalid poll: future already completed")

	// ErrMovedFuture names polling a Future after a combinator has
	// consumed it. No future in this package returns it: combinators
	// hold their upstream privately and drop it once it has settled.
	ErrMovedFuture = errors.New("future: future has been moved")

	// ErrEmptyFutureSet is returned by Select/WhenAny when given zero
	// futures to race.
	ErrEmptyFutureSet = errors.New("future: empty future set")
)
