package framing

import (
	"errors"

	"github.com/joeycumines/asyncrt/future"
)

// Errors surfaced by the dispatch layer (spec.md §7's "DispatchError
// (protocol-level mismatch in RPC layer)").
var (
	// ErrProtocolMismatch is returned when a response arrives with no
	// matching outstanding request (spec.md §4.15 "mismatched counts are
	// a protocol error" / "unknown id is a protocol error").
	ErrProtocolMismatch = errors.New("framing: protocol mismatch")
	// ErrDispatchClosed is the failure every outstanding and future call
	// observes once a dispatcher has torn down.
	ErrDispatchClosed = errors.New("framing: dispatcher closed")
)

// Service is the contract codec-independent business logic implements
// (spec.md §6 "To service authors"). IsAvailable does not gate dispatch
// in either PipelinedServer or MultiplexServer (spec.md §9 OQ-3: the
// source never consults it in its own dispatchers either).
type Service[Req, Resp any] interface {
	Call(req Req) future.Future[Resp]
	Close() future.Future[struct{}]
	IsAvailable() bool
}

// ServiceFilter wraps a Service, optionally intercepting requests and
// responses (spec.md §6 "ServiceFilter: wraps another service; may
// intercept requests/responses").
type ServiceFilter[Req, Resp any] interface {
	Wrap(next Service[Req, Resp]) Service[Req, Resp]
}

// ServiceFunc adapts a plain call function plus a close/availability
// pair into a Service.
type ServiceFunc[Req, Resp any] struct {
	CallFunc  func(req Req) future.Future[Resp]
	CloseFunc func() future.Future[struct{}]
	Available func() bool
}

func (f ServiceFunc[Req, Resp]) Call(req Req) future.Future[Resp] { return f.CallFunc(req) }

func (f ServiceFunc[Req, Resp]) Close() future.Future[struct{}] {
	if f.CloseFunc == nil {
		return future.ImmediateOk(struct{}{})
	}
	return f.CloseFunc()
}

func (f ServiceFunc[Req, Resp]) IsAvailable() bool {
	if f.Available == nil {
		return true
	}
	return f.Available()
}

// Envelope tags a payload with a call id for multiplexed dispatch
// (spec.md §4.15 "keyed by a request-carried callId").
type Envelope[T any] struct {
	CallID  uint64
	Payload T
}
