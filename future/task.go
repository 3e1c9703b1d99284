package future

import "sync/atomic"

// TaskID identifies a top-level spawned future for diagnostics/logging.
type TaskID uint64

var nextTaskID atomic.Uint64

// NewTaskID returns a process-wide unique task identifier.
func NewTaskID() TaskID {
	return TaskID(nextTaskID.Add(1))
}

// Unpark is a handle a leaf future uses to request that its owning task
// be polled again. Implementations must be safe to call from any
// goroutine and idempotent in observable effect: any number of calls
// before the next poll collapse into at most one re-poll (spec.md §3/§4.2).
type Unpark interface {
	Unpark()
}

// UnparkFunc adapts a plain function to Unpark.
type UnparkFunc func()

// Unpark calls f.
func (f UnparkFunc) Unpark() { f() }

// noopUnpark discards unparks; used as the zero Waker's handle so a
// Waker obtained outside of a real poll (e.g. in a unit test polling a
// Future directly) never panics.
type noopUnpark struct{}

func (noopUnpark) Unpark() {}

// Task is the identity-bearing handle a parked leaf future retains in
// order to request a re-poll. Cloning a Task (copying the struct) is
// always safe; it carries no ownership.
type Task struct {
	ID     TaskID
	unpark Unpark
}

// NewTask builds a Task with the given id bound to the given Unpark
// implementation. Used by reactor.Spawn to bind a task's unpark to the
// runnable it drives.
func NewTask(id TaskID, unpark Unpark) Task {
	return Task{ID: id, unpark: unpark}
}

// Unpark requests that this task be polled again. Safe to call from any
// goroutine, any number of times; a no-op after the task's future has
// reached a terminal state (the Unpark implementation is responsible
// for making that true — see reactor.UnparkMutex).
func (t Task) Unpark() {
	if t.unpark != nil {
		t.unpark.Unpark()
	}
}

// Waker is threaded explicitly through every Poll call, in place of the
// source's thread-local current_task slot (spec.md §4.2, re-architected
// per spec.md §9: Go has no implicit per-goroutine storage without
// unsafe tricks, and the reactor is already single-goroutine-per-reactor,
// so an explicit parameter is strictly more type-safe than a scoped
// global and costs nothing in practice).
type Waker struct {
	task Task
}

// NewWaker builds a Waker around the given Task.
func NewWaker(t Task) *Waker { return &Waker{task: t} }

// NewTestWaker builds a Waker with a fresh Task and a no-op Unpark, for
// use in tests that poll a Future directly without a reactor.
func NewTestWaker() *Waker {
	return &Waker{task: Task{ID: NewTaskID(), unpark: noopUnpark{}}}
}

// Task returns the task bound to this Waker. Leaf futures call this to
// obtain a Task to retain and Unpark later, instead of reading a
// thread-local.
func (w *Waker) Task() Task {
	if w == nil {
		return Task{unpark: noopUnpark{}}
	}
	return w.task
}
