package reactor

import (
	"time"

	"github.com/joeycumines/asyncrt/future"
)

// timeoutFuture races fut against a reactor timer (spec.md §4.3
// "timeout(fut, duration): races fut against a timer; on timer expiry
// returns a Timeout error; on completion cancels the timer side"). It
// lives in this package rather than future because it needs a Reactor
// to source its deadline, unlike the pure-combinator algebra in
// future.Combinators.
type timeoutFuture[T any] struct {
	r         *Reactor
	fut       future.Future[T]
	timer     future.Future[struct{}]
	timerDone bool
	done      bool
}

// Timeout returns a Future resolving to fut's own outcome if it
// completes within d, or ErrTimeout if d elapses first. Whichever side
// loses the race is simply dropped — there is no explicit cancel
// signal for fut itself, matching the source's "races" semantics (the
// loser's resources are reclaimed when its own future/token is
// garbage collected or separately closed by the caller).
func Timeout[T any](r *Reactor, fut future.Future[T], d time.Duration) future.Future[T] {
	return &timeoutFuture[T]{r: r, fut: fut, timer: Delay(r, d)}
}

func (f *timeoutFuture[T]) Poll(w *future.Waker) future.Poll[T] {
	if f.done {
		return future.Err[T](future.ErrInvalidPoll)
	}

	if p := f.fut.Poll(w); !p.IsNotReady() {
		f.done = true
		if p.IsReady() {
			v, _ := p.Value()
			return future.Ready(v)
		}
		err, _ := p.Error()
		return future.Err[T](err)
	}

	if !f.timerDone {
		if tp := f.timer.Poll(w); !tp.IsNotReady() {
			f.timerDone = true
			f.done = true
			return future.Err[T](ErrTimeout)
		}
	}

	return future.NotReady[T]()
}
