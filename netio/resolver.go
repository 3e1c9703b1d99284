package netio

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
)

// Resolver is an I/O object wrapping an asynchronous DNS lookup bound
// to a reactor (spec.md §4.13). Go's net.Resolver has no readiness-
// based interface of its own (it issues blocking calls over its own
// internally-managed sockets), so each Resolve call runs the lookup on
// a dedicated goroutine and delivers the result — an accumulated
// address vector, matching the source's "A4/A6 append addresses" model
// — back onto the reactor via Execute, the same bridge SignalSource
// uses for os/signal.
//
// Domain-stack addition: every lookup passes through a
// github.com/joeycumines/go-catrate Limiter keyed by hostname, pacing
// retry/lookup volume the way the teacher's own rate-limited clients
// do, since the source's DNS context has no equivalent backpressure of
// its own.
type Resolver struct {
	r      *reactor.Reactor
	dns    *net.Resolver
	limit  *catrate.Limiter
	cancel context.CancelFunc
}

// NewResolver builds a Resolver bound to r, rate-limiting lookups per
// hostname to at most maxPerSecond per second.
func NewResolver(r *reactor.Reactor, maxPerSecond int) *Resolver {
	return &Resolver{
		r:     r,
		dns:   net.DefaultResolver,
		limit: catrate.NewLimiter(map[time.Duration]int{time.Second: maxPerSecond}),
	}
}

// Resolve looks up host's A/AAAA records, returning a Future of the
// accumulated address list (spec.md §4.13 "when all requested-type
// queries complete, the token transitions to Done").
func (res *Resolver) Resolve(host string) future.Future[[]net.IP] {
	tok := &resolveToken{}

	if _, ok := res.limit.Allow(host); !ok {
		tok.state = reactor.TokenDone
		tok.err = ErrRateLimited
		return &resolveFuture{tok: tok}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tok.cancel = cancel

	// An fd-less IoObject holding one pending token keeps the reactor's
	// Run loop alive until the lookup's result has been delivered.
	pending := reactor.NewCompletionToken(reactor.OpRead)
	pending.Attach(reactor.NewIoObject(res.r, -1))

	go func() {
		addrs, err := res.dns.LookupIPAddr(ctx, host)
		res.r.Execute(func() {
			pending.NotifyDone(nil)
			tok.mu.Lock()
			if tok.state != reactor.TokenStarted {
				tok.mu.Unlock()
				return
			}
			tok.state = reactor.TokenDone
			if err != nil {
				tok.err = err
			} else {
				ips := make([]net.IP, 0, len(addrs))
				for _, a := range addrs {
					ips = append(ips, a.IP)
				}
				tok.ips = ips
			}
			task, armed := tok.task, tok.armed
			tok.armed = false
			tok.mu.Unlock()
			if armed {
				task.Unpark()
			}
		})
	}()

	return &resolveFuture{tok: tok}
}

// resolveToken tracks one in-flight (or completed) lookup (spec.md
// §4.13 "a resolve token stores per-type query handles and an
// accumulating address vector").
type resolveToken struct {
	mu     sync.Mutex
	state  reactor.TokenState
	ips    []net.IP
	err    error
	task   future.Task
	armed  bool
	cancel context.CancelFunc
}

// Cancel aborts an in-flight lookup (spec.md §4.13 "Cancellation
// cancels outstanding query handles").
func (t *resolveToken) Cancel() {
	t.mu.Lock()
	if t.state != reactor.TokenStarted {
		t.mu.Unlock()
		return
	}
	t.state = reactor.TokenCancelled
	t.err = reactor.NewCancelError(reactor.CancelUserCancel)
	cancel := t.cancel
	task, armed := t.task, t.armed
	t.armed = false
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if armed {
		task.Unpark()
	}
}

type resolveFuture struct{ tok *resolveToken }

func (f *resolveFuture) Poll(w *future.Waker) future.Poll[[]net.IP] {
	t := f.tok
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case reactor.TokenDone:
		if t.err != nil {
			return future.Err[[]net.IP](t.err)
		}
		return future.Ready(t.ips)
	case reactor.TokenCancelled:
		return future.Err[[]net.IP](t.err)
	default:
		t.task = w.Task()
		t.armed = true
		return future.NotReady[[]net.IP]()
	}
}
