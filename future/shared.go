package future

import "sync"

// Shared wraps a single underlying Future so that multiple cloneable
// handles may each observe its result (spec.md §4.3 shared(), §5
// "shared-resource policy"). The first clone to poll drives the
// underlying future; parallel clones park and are woken on completion.
//
// Go has no destructors, so the source's "drop of a polling clone
// hands off to another clone" (spec.md §9 Open Question, DESIGN.md
// OQ-2) is modeled explicitly: a clone that will no longer poll must
// call [SharedHandle.Release] so a waiting clone can take over. Without
// a Release no handoff occurs, including when the driving clone is
// garbage collected: the other clones stay parked until the driving
// clone polls the underlying future to completion.
type Shared[T any] struct {
	mu      sync.Mutex
	inner   Future[T]
	settled bool
	result  Poll[T]
	driver  *SharedHandle[T] // handle currently allowed to poll inner; nil if none
	waiters []Task
}

// NewShared builds a Shared wrapper around fut.
func NewShared[T any](fut Future[T]) *Shared[T] {
	return &Shared[T]{inner: fut}
}

// Handle returns a new cloneable view over the shared future.
func (s *Shared[T]) Handle() *SharedHandle[T] {
	return &SharedHandle[T]{shared: s}
}

// SharedHandle is one clone of a Shared future.
type SharedHandle[T any] struct {
	shared   *Shared[T]
	released bool
}

// Clone returns a new handle over the same underlying Shared future.
func (h *SharedHandle[T]) Clone() *SharedHandle[T] { return h.shared.Handle() }

// Release marks this handle as no longer polling, allowing another
// parked waiter to become the driver on its next poll (DESIGN.md OQ-2).
func (h *SharedHandle[T]) Release() {
	if h.released {
		return
	}
	h.released = true
	s := h.shared
	s.mu.Lock()
	var wake Task
	haveWake := false
	if s.driver == h {
		s.driver = nil
		if !s.settled && len(s.waiters) > 0 {
			wake = s.waiters[0]
			s.waiters = s.waiters[1:]
			haveWake = true
		}
	}
	s.mu.Unlock()
	if haveWake {
		wake.Unpark()
	}
}

func (h *SharedHandle[T]) Poll(w *Waker) Poll[T] {
	s := h.shared
	s.mu.Lock()
	if s.settled {
		res := s.result
		s.mu.Unlock()
		return res
	}
	if s.driver == nil || s.driver == h {
		s.driver = h
		s.mu.Unlock()
		p := s.inner.Poll(w)
		s.mu.Lock()
		if p.IsNotReady() {
			s.mu.Unlock()
			return p
		}
		s.settled = true
		s.result = p
		s.driver = nil
		waiters := s.waiters
		s.waiters = nil
		s.mu.Unlock()
		for _, t := range waiters {
			t.Unpark()
		}
		return p
	}
	// another handle is driving; park.
	s.waiters = append(s.waiters, w.Task())
	s.mu.Unlock()
	return NotReady[T]()
}
