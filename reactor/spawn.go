package reactor

import (
	"fmt"

	"github.com/joeycumines/asyncrt/chanx"
	"github.com/joeycumines/asyncrt/future"
)

// futureSpawnRun is the Runnable that owns a top-level future and
// drives it under unpark-mutex re-entry protection (spec.md §3
// "FutureSpawnRun", §4.4).
type futureSpawnRun[T any] struct {
	mu     *UnparkMutex
	fut    future.Future[T]
	task   future.Task
	settle func(outcome[T])
}

type outcome[T any] struct {
	value T
	err   error
}

// outcomeFuture adapts a one-shot channel of outcome[T] back into a
// future.Future[T], so Spawn's caller gets an ordinary Future to poll
// or chain rather than a reactor-specific handle type.
type outcomeFuture[T any] struct {
	recv *chanx.OneShotReceiver[outcome[T]]
}

func (f *outcomeFuture[T]) Poll(w *future.Waker) future.Poll[T] {
	p := f.recv.Poll(w)
	switch {
	case p.IsReady():
		o, _ := p.Value()
		if o.err != nil {
			return future.Err[T](o.err)
		}
		return future.Ready(o.value)
	case p.IsErr():
		err, _ := p.Error()
		return future.Err[T](err)
	default:
		return future.NotReady[T]()
	}
}

// Spawn wraps f in a FutureSpawnRun and schedules it on r (spec.md
// §4.5 "spawn(future)"). The returned Future resolves to f's own
// outcome exactly once, regardless of which goroutine polls it.
func Spawn[T any](r *Reactor, f future.Future[T]) future.Future[T] {
	sender, receiver := chanx.NewOneShot[outcome[T]]()

	run := &futureSpawnRun[T]{
		mu:  NewUnparkMutex(),
		fut: f,
		settle: func(o outcome[T]) {
			_ = sender.Send(o)
		},
	}
	id := future.NewTaskID()
	run.task = future.NewTask(id, future.UnparkFunc(func() {
		if run.mu.Notify() {
			r.Execute(run.Run)
		}
	}))
	run.mu.Start()
	r.ExecuteRunnable(run)

	return &outcomeFuture[T]{recv: receiver}
}

// Run implements Runnable, executing the FutureSpawnRun algorithm of
// spec.md §4.4 steps 1-4.
func (s *futureSpawnRun[T]) Run() {
	for {
		p := s.pollCatchingPanic()
		if p.IsReady() {
			v, _ := p.Value()
			s.mu.Complete()
			s.settle(outcome[T]{value: v})
			return
		}
		if p.IsErr() {
			err, _ := p.Error()
			s.mu.Complete()
			s.settle(outcome[T]{err: err})
			return
		}
		if repoll := s.mu.Wait(); !repoll {
			return
		}
		// Repoll requested: loop immediately without re-enqueueing.
	}
}

// pollCatchingPanic recovers a panicking Poll the way spec.md §4.3
// requires combinator bodies to: "any thrown exception ... is caught
// and converted into an Err poll result". Per DESIGN.md OQ-1, recovery
// happens only at this top-level spawn boundary rather than inside
// every combinator: a panic propagating out of nested combinators
// still unwinds cleanly to here, so duplicating the recover in each
// combinator would only add redundant defensive code.
func (s *futureSpawnRun[T]) pollCatchingPanic() (p future.Poll[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			p = future.Err[T](fmt.Errorf("reactor: panic in spawned future: %v", rec))
		}
	}()
	w := future.NewWaker(s.task)
	return s.fut.Poll(w)
}
