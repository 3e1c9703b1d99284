package reactor

import (
	"container/list"
	"sync"

	"github.com/joeycumines/asyncrt/future"
)

// OperationKind selects which of an IoObject's intrusive pending lists a
// CompletionToken belongs to (spec.md §4.6: "Operations: Connect, Read,
// Write — other resources reuse these slots (DNS uses Read; timers use
// Read; signals use their own watcher without a list)").
type OperationKind uint8

const (
	OpConnect OperationKind = iota
	OpRead
	OpWrite
	numOperationKinds
)

// TokenState is a CompletionToken's lifecycle stage (spec.md §3:
// "Started -> Done | Cancelled").
type TokenState uint8

const (
	TokenStarted TokenState = iota
	TokenDone
	TokenCancelled
)

// CompletionToken links a single pending operation into its owning
// IoObject's per-kind list and parks a task until the operation
// completes or is cancelled (spec.md §3/§4.6).
type CompletionToken struct {
	mu    sync.Mutex
	state TokenState
	kind  OperationKind
	owner *IoObject
	elem  *list.Element
	task  future.Task
	armed bool
	err   error
}

// NewCompletionToken builds an unattached token for the given
// operation kind.
func NewCompletionToken(kind OperationKind) *CompletionToken {
	return &CompletionToken{kind: kind}
}

// Attach links the token into obj's list for its kind, registering obj
// with the reactor's watcher list if this is its first pending
// operation (spec.md §4.6 "Token attach").
func (t *CompletionToken) Attach(obj *IoObject) {
	t.mu.Lock()
	t.owner = obj
	t.mu.Unlock()
	t.elem = obj.attach(t.kind, t)
}

// Park records w's task so a later notifyDone/dataReady/cancel wakes
// it. Leaf futures call this on every NotReady poll.
func (t *CompletionToken) Park(w *future.Waker) {
	t.mu.Lock()
	t.task = w.Task()
	t.armed = true
	t.mu.Unlock()
}

// State returns the token's current lifecycle stage.
func (t *CompletionToken) State() TokenState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal error, if any (set by notifyDone with a
// non-nil error, or by cancel).
func (t *CompletionToken) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// DataReady unparks the waiting task without completing the token
// (spec.md §4.6: "On partial progress (Read streaming), calls
// data_ready(n) which only unparks").
func (t *CompletionToken) DataReady() {
	t.mu.Lock()
	task, armed := t.task, t.armed
	t.armed = false
	t.mu.Unlock()
	if armed {
		task.Unpark()
	}
}

// NotifyDone transitions the token to Done (recording err, if any),
// unlinks it from its owner's list, and unparks the waiter exactly
// once (spec.md §4.6: "calls notify_done() on the token -> transitions
// to Done, unlinks from list, unparks waiter").
func (t *CompletionToken) NotifyDone(err error) {
	t.mu.Lock()
	if t.state != TokenStarted {
		t.mu.Unlock()
		return
	}
	t.state = TokenDone
	t.err = err
	owner, elem := t.owner, t.elem
	task, armed := t.task, t.armed
	t.armed = false
	t.mu.Unlock()

	if owner != nil && elem != nil {
		owner.detach(t.kind, elem)
	}
	if armed {
		task.Unpark()
	}
}

// Cancel transitions a Started token to Cancelled, unlinking it and
// waking its waiter with a *CancelError (spec.md §4.6 "Cancellation").
func (t *CompletionToken) Cancel(reason CancelReason) {
	t.mu.Lock()
	if t.state != TokenStarted {
		t.mu.Unlock()
		return
	}
	t.state = TokenCancelled
	t.err = NewCancelError(reason)
	owner, elem := t.owner, t.elem
	task, armed := t.task, t.armed
	t.armed = false
	t.mu.Unlock()

	if owner != nil && elem != nil {
		owner.detach(t.kind, elem)
	}
	if armed {
		task.Unpark()
	}
}

// IoObject is the base of every concrete resource (socket, pipe, timer,
// DNS query) that registers pending operations with a Reactor (spec.md
// §3 "IoObject").
type IoObject struct {
	r    *Reactor
	mu   sync.Mutex
	fd   int
	list [numOperationKinds]list.List

	watchID    uint64
	registered bool
}

// NewIoObject builds an IoObject bound to r. fd is the underlying file
// descriptor the reactor's poller watches; pass -1 for resources with
// no fd of their own (e.g. a timer-backed IoObject).
func NewIoObject(r *Reactor, fd int) *IoObject {
	o := &IoObject{r: r, fd: fd}
	for i := range o.list {
		o.list[i].Init()
	}
	return o
}

// Reactor returns the owning reactor.
func (o *IoObject) Reactor() *Reactor { return o.r }

// FD returns the bound file descriptor, or -1 if none.
func (o *IoObject) FD() int { return o.fd }

func (o *IoObject) attach(kind OperationKind, t *CompletionToken) *list.Element {
	o.mu.Lock()
	elem := o.list[kind].PushBack(t)
	needRegister := !o.registered
	o.registered = true
	o.mu.Unlock()
	if needRegister {
		o.watchID = o.r.registerWatcher(o)
	}
	return elem
}

func (o *IoObject) detach(kind OperationKind, elem *list.Element) {
	o.mu.Lock()
	o.list[kind].Remove(elem)
	empty := o.allEmptyLocked()
	watchID := o.watchID
	if empty {
		o.registered = false
	}
	o.mu.Unlock()
	if empty {
		o.r.unregisterWatcherID(watchID)
	}
}

func (o *IoObject) allEmptyLocked() bool {
	for i := range o.list {
		if o.list[i].Len() > 0 {
			return false
		}
	}
	return true
}

// Pending iterates every currently-attached token of the given kind,
// in FIFO order. Watcher callbacks (e.g. a socket's read-readiness
// handler) use this to drive completions; the callback must not mutate
// the list except via the token's own NotifyDone/Cancel, which detach
// it safely mid-iteration.
func (o *IoObject) Pending(kind OperationKind) []*CompletionToken {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*CompletionToken, 0, o.list[kind].Len())
	for e := o.list[kind].Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*CompletionToken))
	}
	return out
}

// OnCancel implements Watcher: every pending token across every
// operation kind is cancelled with reason (spec.md §4.6: "Dropping the
// I/O object (or on_cancel from the reactor) cancels all pending
// tokens with IOObjectShutdown").
func (o *IoObject) OnCancel(reason CancelReason) {
	for kind := OperationKind(0); kind < numOperationKinds; kind++ {
		for _, t := range o.Pending(kind) {
			t.Cancel(reason)
		}
	}
}

// Close cancels every pending token with CancelIOObjectShutdown. Safe
// to call multiple times.
func (o *IoObject) Close() {
	o.OnCancel(CancelIOObjectShutdown)
}
