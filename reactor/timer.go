package reactor

import (
	"container/list"
	"sync"
	"time"

	"github.com/joeycumines/asyncrt/future"
)

// Timer is a single-token, one-shot delay (spec.md §4.11 last
// paragraph: "The one-shot delay(ev, seconds) future constructs its
// own single-token timer").
type Timer struct {
	r *Reactor

	mu     sync.Mutex
	state  TokenState
	task   future.Task
	armed  bool
	err    error
	handle *TimerHandle

	watchID uint64
}

// Delay returns a Future that resolves after d elapses on r's clock.
// Must be created from (and polled/cancelled only in conjunction with)
// r's own goroutine, matching every other reactor-owned resource.
func Delay(r *Reactor, d time.Duration) future.Future[struct{}] {
	t := &Timer{r: r}
	t.watchID = r.registerWatcher(t)
	t.handle = r.scheduleAt(time.Now().Add(d), t.fire)
	return t
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.state != TokenStarted {
		t.mu.Unlock()
		return
	}
	t.state = TokenDone
	task, armed := t.task, t.armed
	t.armed = false
	watchID := t.watchID
	t.mu.Unlock()

	t.r.unregisterWatcherID(watchID)
	if armed {
		task.Unpark()
	}
}

// OnCancel implements Watcher (spec.md §5: executor shutdown cancels
// every registered watcher).
func (t *Timer) OnCancel(reason CancelReason) {
	t.mu.Lock()
	if t.state != TokenStarted {
		t.mu.Unlock()
		return
	}
	t.state = TokenCancelled
	t.err = NewCancelError(reason)
	if t.handle != nil {
		t.handle.Cancel()
	}
	task, armed := t.task, t.armed
	t.armed = false
	watchID := t.watchID
	t.mu.Unlock()

	t.r.unregisterWatcherID(watchID)
	if armed {
		task.Unpark()
	}
}

// Poll implements future.Future[struct{}].
func (t *Timer) Poll(w *future.Waker) future.Poll[struct{}] {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TokenDone:
		return future.Ready(struct{}{})
	case TokenCancelled:
		return future.Err[struct{}](t.err)
	default:
		t.task = w.Task()
		t.armed = true
		return future.NotReady[struct{}]()
	}
}

// timerToken is one pending deadline inside a TimerKeeper's FIFO.
type timerToken struct {
	deadline time.Time
	state    TokenState
	task     future.Task
	armed    bool
	err      error
	elem     *list.Element
}

// TimerKeeper holds a fixed duration and a deadline-ordered FIFO of
// tokens sharing it, backed by a single underlying timer armed to the
// head's deadline (spec.md §3/§4.11).
type TimerKeeper struct {
	r   *Reactor
	dur time.Duration

	mu         sync.Mutex
	pending    list.List
	handle     *TimerHandle
	watchID    uint64
	registered bool
}

// NewTimerKeeper builds a keeper for repeated delays of the same
// duration (e.g. a connection idle-timeout reused across many reads).
func NewTimerKeeper(r *Reactor, dur time.Duration) *TimerKeeper {
	k := &TimerKeeper{r: r, dur: dur}
	k.pending.Init()
	return k
}

// Delay returns a Future resolving once this keeper's duration has
// elapsed from now (spec.md §4.11 "doTimeout()").
func (k *TimerKeeper) Delay() future.Future[struct{}] {
	tok := &timerToken{deadline: time.Now().Add(k.dur)}

	k.mu.Lock()
	tok.elem = k.pending.PushBack(tok)
	isHead := k.pending.Front().Value.(*timerToken) == tok
	needRegister := !k.registered
	k.registered = true
	k.mu.Unlock()

	if needRegister {
		k.watchID = k.r.registerWatcher(k)
	}
	if isHead {
		k.rearm(tok.deadline)
	}
	return &timerKeeperFuture{keeper: k, tok: tok}
}

// rearm cancels any existing underlying timer and arms a new one for
// deadline.
func (k *TimerKeeper) rearm(deadline time.Time) {
	k.mu.Lock()
	if k.handle != nil {
		k.handle.Cancel()
	}
	k.handle = k.r.scheduleAt(deadline, k.onFire)
	k.mu.Unlock()
}

// onFire completes every token whose deadline has passed, then rearms
// for the new head or unregisters if the keeper has drained (spec.md
// §4.11: "all tokens with deadline <= now are completed in order and
// popped; the timer is then re-armed to the new head's deadline, or
// stopped if empty").
func (k *TimerKeeper) onFire() {
	now := time.Now()
	var due []*timerToken
	k.mu.Lock()
	for {
		front := k.pending.Front()
		if front == nil {
			break
		}
		tok := front.Value.(*timerToken)
		if tok.deadline.After(now) {
			break
		}
		k.pending.Remove(front)
		tok.state = TokenDone
		due = append(due, tok)
	}
	var nextDeadline time.Time
	hasNext := false
	if front := k.pending.Front(); front != nil {
		nextDeadline = front.Value.(*timerToken).deadline
		hasNext = true
	}
	k.handle = nil
	watchID := k.watchID
	if !hasNext {
		k.registered = false
	}
	k.mu.Unlock()

	for _, tok := range due {
		if tok.armed {
			tok.task.Unpark()
		}
	}
	if hasNext {
		k.rearm(nextDeadline)
	} else {
		k.r.unregisterWatcherID(watchID)
	}
}

// cancelToken removes tok from the pending list before it fires (a
// token dropped before firing removes itself; the timer is re-armed if
// the head changed, per spec.md §4.11).
func (k *TimerKeeper) cancelToken(tok *timerToken, reason CancelReason) {
	k.mu.Lock()
	if tok.state != TokenStarted {
		k.mu.Unlock()
		return
	}
	wasHead := k.pending.Front() != nil && k.pending.Front().Value.(*timerToken) == tok
	k.pending.Remove(tok.elem)
	tok.state = TokenCancelled
	tok.err = NewCancelError(reason)

	var nextDeadline time.Time
	hasNext := false
	if front := k.pending.Front(); front != nil {
		nextDeadline = front.Value.(*timerToken).deadline
		hasNext = true
	}
	watchID := k.watchID
	empty := !hasNext
	if empty {
		k.registered = false
	}
	k.mu.Unlock()

	if tok.armed {
		tok.task.Unpark()
	}
	if wasHead {
		if hasNext {
			k.rearm(nextDeadline)
		} else if empty {
			k.r.unregisterWatcherID(watchID)
		}
	}
}

// OnCancel implements Watcher: every pending token is cancelled with
// reason (executor shutdown).
func (k *TimerKeeper) OnCancel(reason CancelReason) {
	k.mu.Lock()
	toks := make([]*timerToken, 0, k.pending.Len())
	for e := k.pending.Front(); e != nil; e = e.Next() {
		toks = append(toks, e.Value.(*timerToken))
	}
	k.mu.Unlock()
	for _, tok := range toks {
		k.cancelToken(tok, reason)
	}
}

type timerKeeperFuture struct {
	keeper *TimerKeeper
	tok    *timerToken
}

func (f *timerKeeperFuture) Poll(w *future.Waker) future.Poll[struct{}] {
	k := f.keeper
	k.mu.Lock()
	defer k.mu.Unlock()
	switch f.tok.state {
	case TokenDone:
		return future.Ready(struct{}{})
	case TokenCancelled:
		return future.Err[struct{}](f.tok.err)
	default:
		f.tok.task = w.Task()
		f.tok.armed = true
		return future.NotReady[struct{}]()
	}
}
