package chanx

import (
	"sync"

	"github.com/joeycumines/asyncrt/future"
)

// unboundedCore is the shared state behind an Unbounded channel's two
// ends (spec.md §3/§4.14: "any number of senders (reference-counted),
// one receiver; dropping all senders makes the queue drain then EOF").
type unboundedCore[T any] struct {
	mu          sync.Mutex
	queue       []T
	senderCount int
	closed      bool
	recvParked  future.Task
	hasParked   bool
}

// NewUnbounded builds an unbounded MPSC channel, grounded on
// include/futures/channel/UnboundedMPSCChannel.h.
func NewUnbounded[T any]() (*UnboundedSender[T], *UnboundedReceiver[T]) {
	core := &unboundedCore[T]{senderCount: 1}
	return &UnboundedSender[T]{core: core}, &UnboundedReceiver[T]{core: core}
}

// UnboundedSender is one reference-counted handle to the write side.
type UnboundedSender[T any] struct {
	core   *unboundedCore[T]
	closed bool
}

// Clone increments the sender reference count and returns a new handle
// sharing the same underlying queue.
func (s *UnboundedSender[T]) Clone() *UnboundedSender[T] {
	s.core.mu.Lock()
	s.core.senderCount++
	s.core.mu.Unlock()
	return &UnboundedSender[T]{core: s.core}
}

// Send enqueues v. Always succeeds unless the receiver has gone away or
// this sender handle has been closed (ErrChannelClosed), per spec.md
// §4.14.
func (s *UnboundedSender[T]) Send(v T) error {
	if s.closed {
		return ErrChannelClosed
	}
	c := s.core
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.queue = append(c.queue, v)
	task, wake := c.recvParked, c.hasParked
	c.hasParked = false
	c.mu.Unlock()
	if wake {
		task.Unpark()
	}
	return nil
}

// Close drops this sender handle. Once every clone has been closed, the
// receiver observes end-of-stream after draining whatever remains
// buffered.
func (s *UnboundedSender[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	c := s.core
	c.mu.Lock()
	c.senderCount--
	allGone := c.senderCount == 0
	var task future.Task
	wake := false
	if allGone {
		task, wake = c.recvParked, c.hasParked
		c.hasParked = false
	}
	c.mu.Unlock()
	if wake {
		task.Unpark()
	}
}

// UnboundedReceiver is the single read side; it implements
// future.Stream[T] (Ready(Some(v)) per item, Ready(None) once every
// sender has closed and the queue has drained).
type UnboundedReceiver[T any] struct {
	core   *unboundedCore[T]
	closed bool
}

var _ future.Stream[int] = (*UnboundedReceiver[int])(nil)

// Poll implements future.Stream[T].
func (r *UnboundedReceiver[T]) Poll(w *future.Waker) future.Poll[future.Option[T]] {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		v := c.queue[0]
		c.queue = c.queue[1:]
		return future.Ready(future.Some(v))
	}
	if c.senderCount == 0 {
		return future.Ready(future.None[T]())
	}
	c.recvParked = w.Task()
	c.hasParked = true
	return future.NotReady[future.Option[T]]()
}

// Close drops the receiver.
func (r *UnboundedReceiver[T]) Close() {
	c := r.core
	c.mu.Lock()
	c.closed = true
	c.hasParked = false
	c.mu.Unlock()
}
