package reactor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joeycumines/asyncrt/future"
)

// SignalSource is a one-shot future yielding the signal number once a
// registered OS signal arrives (spec.md §4.12). Registers a single
// signal watcher; future yields the signal number once, then is
// terminal.
//
// os/signal delivery is inherently asynchronous with respect to any
// single goroutine, so a SignalSource bridges it onto the owning
// reactor with a dedicated goroutine that blocks on the notification
// channel and hands the result to Reactor.Execute — the only place in
// this package a background goroutine is unavoidable, since Go exposes
// no readiness-based signalfd equivalent in the standard library the
// way epoll/kqueue expose fd readiness.
type SignalSource struct {
	r   *Reactor
	sig os.Signal
	ch  chan os.Signal

	mu      sync.Mutex
	state   TokenState
	task    future.Task
	armed   bool
	result  os.Signal
	err     error
	watchID uint64

	closeOnce sync.Once
}

// NewSignalSource registers sig and returns the source. Must be closed
// via its Future resolving, or cancelled by executor shutdown, to stop
// the underlying os/signal registration.
func NewSignalSource(r *Reactor, sig os.Signal) *SignalSource {
	s := &SignalSource{r: r, sig: sig, ch: make(chan os.Signal, 1)}
	signal.Notify(s.ch, sig)
	s.watchID = r.registerWatcher(s)
	go s.watch()
	return s
}

func (s *SignalSource) watch() {
	got, ok := <-s.ch
	if !ok {
		return
	}
	s.r.Execute(func() { s.deliver(got) })
}

func (s *SignalSource) stopNotify() {
	s.closeOnce.Do(func() {
		signal.Stop(s.ch)
		close(s.ch)
	})
}

func (s *SignalSource) deliver(got os.Signal) {
	s.mu.Lock()
	if s.state != TokenStarted {
		s.mu.Unlock()
		return
	}
	s.state = TokenDone
	s.result = got
	task, armed := s.task, s.armed
	s.armed = false
	watchID := s.watchID
	s.mu.Unlock()

	s.stopNotify()
	s.r.unregisterWatcherID(watchID)
	if armed {
		task.Unpark()
	}
}

// OnCancel implements Watcher.
func (s *SignalSource) OnCancel(reason CancelReason) {
	s.mu.Lock()
	if s.state != TokenStarted {
		s.mu.Unlock()
		return
	}
	s.state = TokenCancelled
	s.err = NewCancelError(reason)
	task, armed := s.task, s.armed
	s.armed = false
	watchID := s.watchID
	s.mu.Unlock()

	s.stopNotify()
	s.r.unregisterWatcherID(watchID)
	if armed {
		task.Unpark()
	}
}

// Poll implements future.Future[int], yielding the platform signal
// number on delivery.
func (s *SignalSource) Poll(w *future.Waker) future.Poll[int] {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case TokenDone:
		if sig, ok := s.result.(syscall.Signal); ok {
			return future.Ready(int(sig))
		}
		return future.Ready(0)
	case TokenCancelled:
		return future.Err[int](s.err)
	default:
		s.task = w.Task()
		s.armed = true
		return future.NotReady[int]()
	}
}
