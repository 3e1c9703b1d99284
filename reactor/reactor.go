package reactor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Runnable is a unit of work the reactor drives to completion of one
// run() call (spec.md §3: "Runnable: an object with run(); lives in an
// intrusive list held by the reactor").
type Runnable interface {
	Run()
}

// Reactor is a single-threaded event reactor: one Reactor is driven by
// exactly one goroutine calling Run, multiplexing timers, signals, and
// registered I/O watchers (spec.md §1.2, §4.5).
//
// Deviation from the source design: the original pins a reactor to an
// OS thread and fast-paths same-thread Execute calls by comparing a
// thread-local "current executor" cell against the caller. Go has no
// idiomatic equivalent of thread-local storage for goroutines, so every
// Execute/Spawn call — whether issued from the reactor's own goroutine
// mid-poll or from a completely unrelated one — is funneled through the
// same mutex-guarded ingress queue and wakeup. This trades the
// same-thread fast path for a single, always-correct code path; see
// DESIGN.md.
type Reactor struct {
	opts Options

	poll poller
	ing  *ingress
	local []func()

	watchMu  sync.Mutex
	watchID  uint64
	watchers map[uint64]Watcher

	timers timerHeap

	wakeReadFD, wakeWriteFD int

	stopRequested atomic.Bool
	running       atomic.Bool
}

// New builds a Reactor and initializes its platform poller and wakeup
// mechanism. The returned Reactor is not yet running; call Run from the
// goroutine that should own it.
func New(opts ...Option) (*Reactor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := newPoller()
	if err := p.Init(); err != nil {
		return nil, err
	}

	readFD, writeFD, err := createWakeFD()
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	r := &Reactor{
		opts:       o,
		poll:       p,
		watchers:   make(map[uint64]Watcher),
		wakeReadFD: readFD, wakeWriteFD: writeFD,
	}
	r.ing = newIngress(r.wake)

	if err := p.RegisterFD(readFD, EventRead, func(IOEvent) { drainWake(readFD) }); err != nil {
		closeWakeFD(readFD, writeFD)
		_ = p.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reactor) wake() {
	writeWake(r.wakeWriteFD)
}

// Execute schedules fn to run on the reactor goroutine (spec.md §4.5
// "execute(runnable)").
func (r *Reactor) Execute(fn func()) {
	r.ing.push(fn)
}

// ExecuteRunnable is a convenience wrapper for Execute(runnable.Run).
func (r *Reactor) ExecuteRunnable(run Runnable) {
	r.Execute(run.Run)
}

// Stop requests the reactor to cancel every registered watcher and
// exit its Run loop once the local queue drains (spec.md §4.5
// "stop()": sets wait_stop and signals the wakeup).
func (r *Reactor) Stop() {
	r.stopRequested.Store(true)
	r.wake()
}

// Options returns the reactor's effective configuration.
func (r *Reactor) Options() Options { return r.opts }

// RegisterFD registers fd with the reactor's poller, invoking cb with
// every readiness event observed for it. Used by netio's socket, pipe,
// and server-socket I/O objects to drive their per-fd watchers (spec.md
// §4.6's "watcher callback (per fd readiness / timer fire)").
func (r *Reactor) RegisterFD(fd int, events IOEvent, cb IOCallback) error {
	return r.poll.RegisterFD(fd, events, cb)
}

// ModifyFD changes the readiness interest set for a previously
// registered fd (e.g. adding EventWrite while a connect or a queued
// write is pending, dropping it once the queue drains).
func (r *Reactor) ModifyFD(fd int, events IOEvent) error {
	return r.poll.ModifyFD(fd, events)
}

// UnregisterFD removes fd from the reactor's poller.
func (r *Reactor) UnregisterFD(fd int) error {
	return r.poll.UnregisterFD(fd)
}

// Run drives the reactor loop until no work is queued and no watcher
// remains registered (Stop cancels every watcher to bring that about),
// or an unrecoverable poller error occurs (spec.md §4.5's five-step
// run() algorithm).
func (r *Reactor) Run() error {
	if !r.running.CompareAndSwap(false, true) {
		panic("reactor: Run called twice")
	}
	defer r.running.Store(false)
	defer func() {
		_ = r.poll.UnregisterFD(r.wakeReadFD)
		closeWakeFD(r.wakeReadFD, r.wakeWriteFD)
		_ = r.poll.Close()
	}()

	for {
		// Step 1: drain foreign queue into the local queue.
		r.local = r.ing.drain(r.local[:0])

		// Step 2: run every runnable in the local queue to completion.
		for _, fn := range r.local {
			fn()
		}

		// A runnable may have scheduled more work (directly on this
		// same reactor); keep draining without blocking until a full
		// pass finds nothing new.
		if more := r.ing.drain(nil); len(more) > 0 {
			for _, fn := range more {
				fn()
			}
			continue
		}

		// Step 3: nothing pending anywhere: done.
		if r.watcherCount() == 0 {
			return nil
		}

		// Step 4: shutdown requested — cancel every watcher and loop
		// back around until the watcher set (and any work it
		// generates while tearing down) has fully drained.
		if r.stopRequested.Load() {
			r.cancelAllWatchers(CancelExecutorShutdown)
			continue
		}

		// Step 5: block for one event batch.
		timeoutMs := -1
		if deadline, ok := r.nextDeadline(); ok {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timeoutMs = int(d / time.Millisecond)
		}
		if _, err := r.poll.PollIO(timeoutMs); err != nil {
			return err
		}
		r.fireDue(time.Now())
	}
}
