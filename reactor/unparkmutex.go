package reactor

import "sync/atomic"

// unparkState is the state of an UnparkMutex (spec.md §4.4, grounded on
// include/futures/UnparkMutex.h). The CAS transition structure follows
// eventloop/state.go's FastState: a pure-CAS lock-free machine with no
// mutex, trading transition validation for throughput.
type unparkState uint32

const (
	// stateWaiting means no poll is in flight and none has been
	// requested; an Unpark call must start one.
	stateWaiting unparkState = iota
	// statePolling means a poll is currently executing.
	statePolling
	// stateRepoll means a poll is executing, but at least one more
	// Unpark arrived while it ran — the runner must poll again before
	// giving up the mutex.
	stateRepoll
	// stateComplete is terminal: the underlying future has resolved and
	// no further polls will occur.
	stateComplete
)

// UnparkMutex guarantees at most one Poll in flight for a given
// top-level spawned future, with no lost wakeups: an Unpark that
// arrives while a Poll is running is not dropped, it forces a repoll
// (spec.md §4.4 invariant I-2 and I-3).
type UnparkMutex struct {
	v atomic.Uint32
}

// NewUnparkMutex returns a mutex in the Waiting state.
func NewUnparkMutex() *UnparkMutex {
	m := &UnparkMutex{}
	m.v.Store(uint32(stateWaiting))
	return m
}

// Notify is called by a Waker. It returns true only when no poll was
// running (Waiting -> Polling): the caller has then won the right (and
// duty) to run Poll. During a running poll it returns false, and the
// in-flight poll observes Repoll and loops again.
//
// Mirrors UnparkMutex::notify of include/futures/UnparkMutex.h: Waiting
// transitions straight to Polling: the caller must poll. Polling
// transitions to Repoll: the in-flight poll will notice and loop.
// Repoll and Complete are no-ops (Complete because the future is done;
// Repoll because a repoll is already promised).
func (m *UnparkMutex) Notify() (shouldPoll bool) {
	for {
		cur := unparkState(m.v.Load())
		switch cur {
		case stateWaiting:
			if m.v.CompareAndSwap(uint32(stateWaiting), uint32(statePolling)) {
				return true
			}
		case statePolling:
			if m.v.CompareAndSwap(uint32(statePolling), uint32(stateRepoll)) {
				return false
			}
		case stateRepoll, stateComplete:
			return false
		}
	}
}

// Start forces the mutex from Waiting into Polling without going
// through Notify's race. Spawn calls this exactly once, before the
// runnable's first Run, so that any Unpark racing the first poll
// correctly observes Polling (and becomes a Repoll) instead of
// double-scheduling the runnable.
func (m *UnparkMutex) Start() {
	m.v.Store(uint32(statePolling))
}

// Wait is called by the runner after a Poll returns NotReady. It
// reports whether a repoll is required (another Unpark arrived mid-poll)
// and, if not, releases the mutex back to Waiting so the next Unpark
// starts a fresh poll.
func (m *UnparkMutex) Wait() (repoll bool) {
	for {
		cur := unparkState(m.v.Load())
		switch cur {
		case statePolling:
			if m.v.CompareAndSwap(uint32(statePolling), uint32(stateWaiting)) {
				return false
			}
		case stateRepoll:
			if m.v.CompareAndSwap(uint32(stateRepoll), uint32(statePolling)) {
				return true
			}
		default:
			// Complete can race Wait only for a future that resolved
			// synchronously during its own NotReady unwind, which
			// cannot happen; treat any surprise as "stop".
			return false
		}
	}
}

// Complete marks the mutex terminal after Poll returns Ready or Err.
// No further Notify call will cause a repoll.
func (m *UnparkMutex) Complete() {
	m.v.Store(uint32(stateComplete))
}

// IsComplete reports whether Complete has been called.
func (m *UnparkMutex) IsComplete() bool {
	return unparkState(m.v.Load()) == stateComplete
}
