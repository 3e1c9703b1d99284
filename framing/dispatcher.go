package framing

import (
	"container/list"
	"sync"

	"github.com/joeycumines/asyncrt/chanx"
	"github.com/joeycumines/asyncrt/future"
)

// PipelinedServer holds a bounded deque of in-flight response futures
// and polls only its head, preserving request order (spec.md §4.15
// "Pipelined dispatcher (server)").
type PipelinedServer[Req, Resp any] struct {
	svc         Service[Req, Resp]
	maxInFlight int
	inflight    list.List
}

// NewPipelinedServer builds a dispatcher driving svc, holding at most
// maxInFlight in-flight responses (0 for unbounded).
func NewPipelinedServer[Req, Resp any](svc Service[Req, Resp], maxInFlight int) *PipelinedServer[Req, Resp] {
	s := &PipelinedServer[Req, Resp]{svc: svc, maxInFlight: maxInFlight}
	s.inflight.Init()
	return s
}

// Full reports whether the in-flight deque has reached its bound; the
// driver loop should stop pulling inbound frames until it drains.
func (s *PipelinedServer[Req, Resp]) Full() bool {
	return s.maxInFlight > 0 && s.inflight.Len() >= s.maxInFlight
}

// Len returns the number of in-flight response futures.
func (s *PipelinedServer[Req, Resp]) Len() int { return s.inflight.Len() }

// Dispatch invokes the service for an inbound request, appending its
// response future to the tail of the deque (spec.md §4.15 "On inbound
// frame, invokes the service, appends the response future").
func (s *PipelinedServer[Req, Resp]) Dispatch(req Req) {
	s.inflight.PushBack(s.svc.Call(req))
}

// Poll polls only the head future; when ready, it is popped and
// returned (spec.md §4.15 "polls only the head future; when ready,
// yields its value, pops, and moves on").
func (s *PipelinedServer[Req, Resp]) Poll(w *future.Waker) (future.Poll[Resp], bool) {
	e := s.inflight.Front()
	if e == nil {
		return future.Poll[Resp]{}, false
	}
	p := e.Value.(future.Future[Resp]).Poll(w)
	if p.IsNotReady() {
		return future.Poll[Resp]{}, false
	}
	s.inflight.Remove(e)
	return p, true
}

// Cancel discards every in-flight response future (final teardown; the
// driver has already surfaced any error to the connection).
func (s *PipelinedServer[Req, Resp]) Cancel() { s.inflight.Init() }

// MultiplexServer dispatches by a request-carried call id; responses
// may complete in any order and are emitted as soon as ready (spec.md
// §4.15 "Multiplex dispatcher (server)").
type MultiplexServer[Req, Resp any] struct {
	svc      Service[Req, Resp]
	inflight map[uint64]future.Future[Resp]
}

// NewMultiplexServer builds a dispatcher driving svc.
func NewMultiplexServer[Req, Resp any](svc Service[Req, Resp]) *MultiplexServer[Req, Resp] {
	return &MultiplexServer[Req, Resp]{svc: svc, inflight: make(map[uint64]future.Future[Resp])}
}

// Len returns the number of in-flight calls.
func (s *MultiplexServer[Req, Resp]) Len() int { return len(s.inflight) }

// Dispatch invokes the service for an inbound request tagged callID.
func (s *MultiplexServer[Req, Resp]) Dispatch(callID uint64, req Req) {
	s.inflight[callID] = s.svc.Call(req)
}

// Poll polls every in-flight future, returning the first one found
// ready along with its call id (spec.md §4.15 "Polls every in-flight
// future each poll call").
func (s *MultiplexServer[Req, Resp]) Poll(w *future.Waker) (uint64, future.Poll[Resp], bool) {
	for id, f := range s.inflight {
		p := f.Poll(w)
		if !p.IsNotReady() {
			delete(s.inflight, id)
			return id, p, true
		}
	}
	return 0, future.Poll[Resp]{}, false
}

// Cancel discards every in-flight call.
func (s *MultiplexServer[Req, Resp]) Cancel() {
	s.inflight = make(map[uint64]future.Future[Resp])
}

// pendingCall is one outstanding client request awaiting a response.
type pendingCall[Req, Resp any] struct {
	req    Req
	sender *chanx.OneShotSender[Resp]
}

// PipelinedClient implements Service by enqueueing (req, promise) pairs
// in order; the driver loop pulls them FIFO for transmission and
// matches inbound responses to the head of the awaiting queue (spec.md
// §4.15 "Pipelined dispatcher (client)").
type PipelinedClient[Req, Resp any] struct {
	mu          sync.Mutex
	pendingSend list.List
	awaiting    list.List
	closed      bool
	closeErr    error
}

// NewPipelinedClient builds an empty pipelined client dispatcher.
func NewPipelinedClient[Req, Resp any]() *PipelinedClient[Req, Resp] {
	c := &PipelinedClient[Req, Resp]{}
	c.pendingSend.Init()
	c.awaiting.Init()
	return c
}

// Call implements Service.Call.
func (c *PipelinedClient[Req, Resp]) Call(req Req) future.Future[Resp] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return future.ImmediateErr[Resp](c.closeErr)
	}
	p := chanx.NewPromise[Resp]()
	c.pendingSend.PushBack(&pendingCall[Req, Resp]{req: req, sender: p.Sender})
	return p.Future
}

// IsAvailable implements Service.IsAvailable.
func (c *PipelinedClient[Req, Resp]) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close implements Service.Close by failing every call.
func (c *PipelinedClient[Req, Resp]) Close() future.Future[struct{}] {
	c.Fail(ErrDispatchClosed)
	return future.ImmediateOk(struct{}{})
}

// NextRequest pops the next request awaiting transmission, moving it
// onto the response-await queue (spec.md §4.15 "poll hands out requests
// FIFO").
func (c *PipelinedClient[Req, Resp]) NextRequest() (Req, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.pendingSend.Front()
	if e == nil {
		var zero Req
		return zero, false
	}
	c.pendingSend.Remove(e)
	call := e.Value.(*pendingCall[Req, Resp])
	c.awaiting.PushBack(call)
	return call.req, true
}

// Deliver matches resp against the head of the response-await queue
// (spec.md §4.15 "Incoming responses match head-of-queue promise;
// mismatched counts are a protocol error").
func (c *PipelinedClient[Req, Resp]) Deliver(resp Resp) error {
	c.mu.Lock()
	e := c.awaiting.Front()
	if e == nil {
		c.mu.Unlock()
		return ErrProtocolMismatch
	}
	c.awaiting.Remove(e)
	call := e.Value.(*pendingCall[Req, Resp])
	c.mu.Unlock()
	_ = call.sender.Send(resp)
	return nil
}

// Fail closes the promise of every pending and awaiting call, so their
// futures fail with chanx.ErrCancelled, and marks the client closed:
// later Calls fail immediately with err (spec.md §4.15 "On error, all
// pending promises fail").
func (c *PipelinedClient[Req, Resp]) Fail(err error) {
	c.mu.Lock()
	c.closed = true
	c.closeErr = err
	var calls []*pendingCall[Req, Resp]
	for e := c.awaiting.Front(); e != nil; e = e.Next() {
		calls = append(calls, e.Value.(*pendingCall[Req, Resp]))
	}
	for e := c.pendingSend.Front(); e != nil; e = e.Next() {
		calls = append(calls, e.Value.(*pendingCall[Req, Resp]))
	}
	c.awaiting.Init()
	c.pendingSend.Init()
	c.mu.Unlock()
	for _, call := range calls {
		call.sender.Close()
	}
}

// MultiplexClient implements Service, keying each call by an
// internally-assigned id so responses may be matched regardless of
// arrival order (spec.md §4.15 "Multiplex dispatcher (client)").
type MultiplexClient[Req, Resp any] struct {
	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]*pendingCall[Req, Resp]
	outQueue list.List
	closed   bool
	closeErr error
}

// NewMultiplexClient builds an empty multiplex client dispatcher.
func NewMultiplexClient[Req, Resp any]() *MultiplexClient[Req, Resp] {
	c := &MultiplexClient[Req, Resp]{pending: make(map[uint64]*pendingCall[Req, Resp])}
	c.outQueue.Init()
	return c
}

// Call implements Service.Call, assigning a fresh call id.
func (c *MultiplexClient[Req, Resp]) Call(req Req) future.Future[Resp] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return future.ImmediateErr[Resp](c.closeErr)
	}
	c.nextID++
	id := c.nextID
	p := chanx.NewPromise[Resp]()
	c.pending[id] = &pendingCall[Req, Resp]{req: req, sender: p.Sender}
	c.outQueue.PushBack(Envelope[Req]{CallID: id, Payload: req})
	return p.Future
}

// IsAvailable implements Service.IsAvailable.
func (c *MultiplexClient[Req, Resp]) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close implements Service.Close by failing every call.
func (c *MultiplexClient[Req, Resp]) Close() future.Future[struct{}] {
	c.Fail(ErrDispatchClosed)
	return future.ImmediateOk(struct{}{})
}

// NextRequest pops the next envelope awaiting transmission.
func (c *MultiplexClient[Req, Resp]) NextRequest() (Envelope[Req], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.outQueue.Front()
	if e == nil {
		return Envelope[Req]{}, false
	}
	c.outQueue.Remove(e)
	return e.Value.(Envelope[Req]), true
}

// Deliver routes resp to the call matching its id (spec.md §4.15
// "response is routed to the promise with matching id; unknown id is a
// protocol error").
func (c *MultiplexClient[Req, Resp]) Deliver(resp Envelope[Resp]) error {
	c.mu.Lock()
	call, ok := c.pending[resp.CallID]
	if ok {
		delete(c.pending, resp.CallID)
	}
	c.mu.Unlock()
	if !ok {
		return ErrProtocolMismatch
	}
	_ = call.sender.Send(resp.Payload)
	return nil
}

// Fail closes the promise of every outstanding call, so their futures
// fail with chanx.ErrCancelled, and marks the client closed: later
// Calls fail immediately with err.
func (c *MultiplexClient[Req, Resp]) Fail(err error) {
	c.mu.Lock()
	c.closed = true
	c.closeErr = err
	calls := make([]*pendingCall[Req, Resp], 0, len(c.pending))
	for id, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, id)
	}
	c.outQueue.Init()
	c.mu.Unlock()
	for _, call := range calls {
		call.sender.Close()
	}
}
