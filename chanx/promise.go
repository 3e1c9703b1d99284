package chanx

import "github.com/joeycumines/asyncrt/future"

// Promise pairs a Sender with the Future read from its one-shot channel
// (spec.md §3/§4/component F, grounded on include/futures/Promise.h).
type Promise[T any] struct {
	Sender *OneShotSender[T]
	Future future.Future[T]
}

// NewPromise builds a fresh Promise[T].
func NewPromise[T any]() Promise[T] {
	s, r := NewOneShot[T]()
	return Promise[T]{Sender: s, Future: r}
}
