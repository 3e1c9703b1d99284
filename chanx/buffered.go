package chanx

import (
	"sync"

	"github.com/joeycumines/asyncrt/future"
)

// writerSlot is a parked sender's value. When a reader pops from the
// ring, the oldest parked writer's value is moved into the freed slot
// and that writer is unparked (spec.md §4.14's doRecv: "notify one
// writer waiter (which inserts its value and unparks)").
type writerSlot[T any] struct {
	value T
	task  future.Task
	done  bool
}

// bufferedCore is the shared state of a capacity-N bounded MPMC channel
// (spec.md §3/§4.14, grounded on include/futures/channel/BufferedChannel.h;
// the ring storage is adapted from catrate/ring.go's mask/cursor
// arithmetic — see chanx/ring.go and DESIGN.md).
type bufferedCore[T any] struct {
	mu          sync.Mutex
	buf         *ring[T]
	capacity    int
	readers     []future.Task
	writers     []*writerSlot[T]
	senderCount int
	closed      bool
}

// NewBuffered builds a bounded buffered channel of the given capacity
// (minimum 1) and returns its sender/receiver ends.
func NewBuffered[T any](capacity int) (*BufferedSender[T], *BufferedReceiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	core := &bufferedCore[T]{buf: newRing[T](capacity), capacity: capacity, senderCount: 1}
	return &BufferedSender[T]{core: core}, &BufferedReceiver[T]{core: core}
}

// BufferedSender is one reference-counted write handle.
type BufferedSender[T any] struct {
	core   *bufferedCore[T]
	closed bool
}

// Clone increments the sender reference count.
func (s *BufferedSender[T]) Clone() *BufferedSender[T] {
	s.core.mu.Lock()
	s.core.senderCount++
	s.core.mu.Unlock()
	return &BufferedSender[T]{core: s.core}
}

// Close drops this sender handle; once every clone is closed, parked
// readers observe end-of-stream after the buffer drains.
func (s *BufferedSender[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	c := s.core
	c.mu.Lock()
	c.senderCount--
	var wake []future.Task
	if c.senderCount == 0 {
		c.closed = true
		wake = c.readers
		c.readers = nil
	}
	c.mu.Unlock()
	for _, t := range wake {
		t.Unpark()
	}
}

// Send returns a future.Future that resolves once v has been accepted
// by the channel — buffered directly when capacity is available, waking
// one parked reader if there is one. If the buffer is full, the future
// parks until a reader drains space (spec.md §4.14 doSend; §8 "Buffered
// channel backpressure" seed scenario).
func (s *BufferedSender[T]) Send(v T) future.Future[struct{}] {
	return &bufferedSendFuture[T]{core: s.core, value: v}
}

type bufferedSendFuture[T any] struct {
	core  *bufferedCore[T]
	value T
	slot  *writerSlot[T]
}

func (f *bufferedSendFuture[T]) Poll(w *future.Waker) future.Poll[struct{}] {
	c := f.core
	c.mu.Lock()
	if f.slot != nil {
		if f.slot.done {
			c.mu.Unlock()
			return future.Ready(struct{}{})
		}
		f.slot.task = w.Task()
		c.mu.Unlock()
		return future.NotReady[struct{}]()
	}
	if c.closed {
		c.mu.Unlock()
		return future.Err[struct{}](ErrChannelClosed)
	}
	if c.buf.Len() < c.capacity {
		c.buf.PushBack(f.value)
		var reader future.Task
		haveReader := false
		if len(c.readers) > 0 {
			reader = c.readers[0]
			c.readers = c.readers[1:]
			haveReader = true
		}
		c.mu.Unlock()
		if haveReader {
			reader.Unpark()
		}
		return future.Ready(struct{}{})
	}
	slot := &writerSlot[T]{value: f.value, task: w.Task()}
	c.writers = append(c.writers, slot)
	f.slot = slot
	c.mu.Unlock()
	return future.NotReady[struct{}]()
}

// BufferedReceiver is the read side; implements future.Stream[T].
type BufferedReceiver[T any] struct {
	core *bufferedCore[T]
}

var _ future.Stream[int] = (*BufferedReceiver[int])(nil)

// Poll implements future.Stream[T] (spec.md §4.14 doRecv).
func (r *BufferedReceiver[T]) Poll(w *future.Waker) future.Poll[future.Option[T]] {
	c := r.core
	c.mu.Lock()
	if c.buf.Len() > 0 {
		v, _ := c.buf.PopFront()
		var slot *writerSlot[T]
		if len(c.writers) > 0 {
			slot = c.writers[0]
			c.writers = c.writers[1:]
			c.buf.PushBack(slot.value)
			slot.done = true
		}
		c.mu.Unlock()
		if slot != nil {
			slot.task.Unpark()
		}
		return future.Ready(future.Some(v))
	}
	if len(c.writers) > 0 {
		slot := c.writers[0]
		c.writers = c.writers[1:]
		slot.done = true
		v := slot.value
		c.mu.Unlock()
		slot.task.Unpark()
		return future.Ready(future.Some(v))
	}
	if c.closed {
		c.mu.Unlock()
		return future.Ready(future.None[T]())
	}
	c.readers = append(c.readers, w.Task())
	c.mu.Unlock()
	return future.NotReady[future.Option[T]]()
}
