package reactor

import (
	"sync/atomic"

	"github.com/joeycumines/asyncrt/future"
)

// Pool is N independent reactors, each pinned to its own goroutine,
// with round-robin Spawn distribution (spec.md §1 Non-goals: "a pool
// is N independent reactors"; no work-stealing, no cross-reactor
// future migration — a future spawned on one reactor runs to
// completion on that reactor alone).
type Pool struct {
	reactors []*Reactor
	next     atomic.Uint64
	errs     chan error
}

// NewPool starts n reactors, each running Run in its own goroutine.
func NewPool(n int, opts ...Option) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	p := &Pool{errs: make(chan error, n)}
	for i := 0; i < n; i++ {
		r, err := New(opts...)
		if err != nil {
			p.Stop()
			return nil, err
		}
		p.reactors = append(p.reactors, r)
		go func(r *Reactor) { p.errs <- r.Run() }(r)
	}
	return p, nil
}

// Next returns the reactor that the next Spawn call would pick,
// advancing the round-robin cursor.
func (p *Pool) Next() *Reactor {
	i := p.next.Add(1) - 1
	return p.reactors[i%uint64(len(p.reactors))]
}

// Size returns the number of reactors in the pool.
func (p *Pool) Size() int { return len(p.reactors) }

// SpawnOnPool picks the next reactor in round-robin order and spawns f
// on it.
func SpawnOnPool[T any](p *Pool, f future.Future[T]) future.Future[T] {
	return Spawn(p.Next(), f)
}

// Stop requests every reactor in the pool to shut down.
func (p *Pool) Stop() {
	for _, r := range p.reactors {
		r.Stop()
	}
}

// Wait blocks until every reactor's Run call has returned, returning
// the first non-nil error observed (if any).
func (p *Pool) Wait() error {
	var first error
	for range p.reactors {
		if err := <-p.errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}
