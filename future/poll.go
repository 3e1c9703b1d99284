// Package future implements the polled-future/stream protocol: the
// readiness contract a [Future] or [Stream] obeys on every call to Poll,
// plus the combinator algebra built on top of it.
//
// There is no thread-local "current task" here (see [Waker]); callers
// thread a *Waker through every Poll call instead.
package future

import "fmt"

// pollState is the three-way outcome of one non-blocking polling step.
type pollState uint8

const (
	stateNotReady pollState = iota
	stateReady
	stateErr
)

// Poll is the outcome of one non-blocking step of a [Future].
//
// A Future must not be polled again after it has returned a Poll in the
// Ready or Err state; implementations of Poll are free to return
// [ErrInvalidPoll] or panic if they are. Combinators in this package
// return ErrInvalidPoll.
type Poll[T any] struct {
	state pollState
	value T
	err   error
}

// Ready builds a Poll reporting that the computation finished with v.
func Ready[T any](v T) Poll[T] {
	return Poll[T]{state: stateReady, value: v}
}

// NotReady builds a Poll reporting that the computation is suspended.
// The caller must have arranged for its Waker to be unparked when
// progress becomes possible before returning this.
func NotReady[T any]() Poll[T] {
	return Poll[T]{state: stateNotReady}
}

// Err builds a Poll reporting terminal failure.
func Err[T any](err error) Poll[T] {
	if err == nil {
		panic("future: Err called with nil error")
	}
	return Poll[T]{state: stateErr, err: err}
}

// IsReady reports whether the Poll is in the Ready state.
func (p Poll[T]) IsReady() bool { return p.state == stateReady }

// IsNotReady reports whether the Poll is in the NotReady state.
func (p Poll[T]) IsNotReady() bool { return p.state == stateNotReady }

// IsErr reports whether the Poll is in the Err state.
func (p Poll[T]) IsErr() bool { return p.state == stateErr }

// Value returns the ready value and true, or the zero value and false.
func (p Poll[T]) Value() (T, bool) {
	if p.state != stateReady {
		var zero T
		return zero, false
	}
	return p.value, true
}

// Error returns the failure reason and true, or nil and false.
func (p Poll[T]) Error() (error, bool) {
	if p.state != stateErr {
		return nil, false
	}
	return p.err, true
}

func (p Poll[T]) String() string {
	switch p.state {
	case stateReady:
		return fmt.Sprintf("Ready(%v)", p.value)
	case stateErr:
		return fmt.Sprintf("Err(%v)", p.err)
	default:
		return "NotReady"
	}
}

// MapPoll transforms the ready value of a Poll, leaving NotReady/Err
// untouched. Used internally by combinators; exported since it is
// generically useful to callers writing their own leaf futures.
func MapPoll[T, U any](p Poll[T], f func(T) U) Poll[U] {
	switch p.state {
	case stateReady:
		return Ready(f(p.value))
	case stateErr:
		return Poll[U]{state: stateErr, err: p.err}
	default:
		return NotReady[U]()
	}
}

// Option is a value that may or may not be present, used as a Stream's
// item type: Ready(Some(v)) is an item, Ready(None) is end-of-stream.
type Option[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] { return Option[T]{value: v, ok: true} }

// None returns an absent value of type T.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the wrapped value and whether it was present.
func (o Option[T]) Get() (T, bool) { return o.value, o.ok }

// IsSome reports whether the option holds a value.
func (o Option[T]) IsSome() bool { return o.ok }
