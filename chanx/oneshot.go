package chanx

import (
	"sync"

	"github.com/joeycumines/asyncrt/future"
)

// oneShotState tracks a OneShot's lifecycle (spec.md §3 "one-shot:
// NotReady | Ready(value) | Closed").
type oneShotState uint8

const (
	oneShotPending oneShotState = iota
	oneShotResolved
	oneShotClosed
)

// OneShot is a single-value, single-sender, single-receiver channel
// (spec.md §3/§4.14, grounded on include/futures/channel/OneShotChannel.h
// and eventloop/promise.go's settle-once semantics).
type OneShot[T any] struct {
	mu         sync.Mutex
	state      oneShotState
	value      T
	received   bool
	recvParked future.Task
	hasParked  bool
}

// NewOneShot builds an unsettled one-shot channel and returns its two
// ends.
func NewOneShot[T any]() (*OneShotSender[T], *OneShotReceiver[T]) {
	ch := &OneShot[T]{}
	return &OneShotSender[T]{ch: ch}, &OneShotReceiver[T]{ch: ch}
}

// OneShotSender is the write half of a OneShot channel.
type OneShotSender[T any] struct {
	ch     *OneShot[T]
	closed bool
}

// Send stores v and wakes the receiver. Sending twice, or after this
// sender was closed, returns ErrChannelClosed. A send after the
// receiver has been closed is accepted and its value is discarded
// (spec.md §8 boundary behavior: "send after receiver drop is accepted
// but discarded").
func (s *OneShotSender[T]) Send(v T) error {
	if s.closed {
		return ErrChannelClosed
	}
	s.closed = true
	ch := s.ch
	ch.mu.Lock()
	if ch.state != oneShotPending {
		ch.mu.Unlock()
		return ErrChannelClosed
	}
	ch.state = oneShotResolved
	ch.value = v
	task, wake := ch.recvParked, ch.hasParked
	ch.hasParked = false
	ch.mu.Unlock()
	if wake {
		task.Unpark()
	}
	return nil
}

// Close drops the sender without sending a value, causing a pending
// receiver poll to observe ErrCancelled (spec.md §8: "poll after sender
// drop returns Cancelled").
func (s *OneShotSender[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	ch := s.ch
	ch.mu.Lock()
	if ch.state != oneShotPending {
		ch.mu.Unlock()
		return
	}
	ch.state = oneShotClosed
	task, wake := ch.recvParked, ch.hasParked
	ch.hasParked = false
	ch.mu.Unlock()
	if wake {
		task.Unpark()
	}
}

// OneShotReceiver is the read half; it implements future.Future[T].
type OneShotReceiver[T any] struct {
	ch *OneShot[T]
}

var _ future.Future[int] = (*OneShotReceiver[int])(nil)

// Poll implements future.Future[T].
func (r *OneShotReceiver[T]) Poll(w *future.Waker) future.Poll[T] {
	ch := r.ch
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch ch.state {
	case oneShotResolved:
		if ch.received {
			return future.Err[T](future.ErrInvalidPoll)
		}
		ch.received = true
		return future.Ready(ch.value)
	case oneShotClosed:
		return future.Err[T](ErrCancelled)
	default:
		ch.recvParked = w.Task()
		ch.hasParked = true
		return future.NotReady[T]()
	}
}

// Close drops the receiver, releasing it for garbage collection; any
// in-flight Send is then accepted-but-discarded per Send's contract.
func (r *OneShotReceiver[T]) Close() {
	ch := r.ch
	ch.mu.Lock()
	ch.hasParked = false
	ch.mu.Unlock()
}
