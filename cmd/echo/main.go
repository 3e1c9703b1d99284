// Command echo is a line-based echo server exercising the reactor,
// netio, and framing packages end to end: it accepts connections,
// frames them with a newline decoder/encoder, and replies to each line
// after a short artificial delay, closing idle connections after 3
// seconds without a request.
package main

import (
	"flag"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/joeycumines/asyncrt/framing"
	"github.com/joeycumines/asyncrt/internal/linecodec"
	"github.com/joeycumines/asyncrt/netio"
	"github.com/joeycumines/asyncrt/reactor"
	"github.com/joeycumines/asyncrt/rtlog"

	"github.com/joeycumines/asyncrt/future"
	"github.com/rs/zerolog"
)

var addrFlag = flag.String("addr", "127.0.0.1:8011", "address to listen on")

func main() {
	flag.Parse()

	log := rtlog.New(os.Stderr, zerolog.InfoLevel)
	log = rtlog.Component(log, "echo")

	tcpAddr, err := net.ResolveTCPAddr("tcp", *addrFlag)
	if err != nil {
		log.Err().Err(err).Log("invalid listen address")
		os.Exit(1)
	}

	r, err := reactor.New()
	if err != nil {
		log.Err().Err(err).Log("reactor init failed")
		os.Exit(1)
	}

	ss, err := netio.Listen(r, tcpAddr, 128)
	if err != nil {
		log.Err().Err(err).Log("listen failed")
		os.Exit(1)
	}
	log.Info().Str("addr", tcpAddr.String()).Log("listening")

	replyDelay := 500 * time.Millisecond
	idleTimeout := 3 * time.Second
	svc := &echoService{r: r, delay: replyDelay}

	acceptLoop := future.LoopFn(struct{}{}, func(struct{}) future.Future[future.LoopState[struct{}, struct{}]] {
		return future.Then(ss.Accept(), func(t future.Try[*netio.AcceptPair]) future.Future[future.LoopState[struct{}, struct{}]] {
			pair, ok := t.Value()
			if !ok {
				log.Err().Err(t.Err()).Log("accept failed, server stopping")
				return future.ImmediateOk(future.Break[struct{}, struct{}](struct{}{}))
			}
			log.Info().Str("peer", pair.Peer.String()).Log("client connected")
			reactor.Spawn(r, serveConn(r, log, pair, svc, idleTimeout))
			return future.ImmediateOk(future.Continue[struct{}, struct{}](struct{}{}))
		})
	})
	reactor.Spawn(r, acceptLoop)

	sig := reactor.NewSignalSource(r, syscall.SIGINT)
	reactor.Spawn(r, future.Map(sig, func(signum int) struct{} {
		log.Info().Int("signal", signum).Log("shutting down")
		r.Stop()
		return struct{}{}
	}))

	if err := r.Run(); err != nil {
		log.Err().Err(err).Log("reactor exited with error")
		os.Exit(1)
	}
}

// serveConn frames pair.Channel with the line codec and drives it
// through a pipelined dispatcher wrapping svc with an idle-closing
// filter (spec.md §4.15's pipelined RPC driver, source's
// ExpiringFilter).
func serveConn(r *reactor.Reactor, log *rtlog.Logger, pair *netio.AcceptPair, svc framing.Service[string, string], idleTimeout time.Duration) future.Future[struct{}] {
	ch := pair.Channel
	stream := framing.NewFramedStream[string](ch, linecodec.NewDecoder())
	sink := framing.NewFramedSink[string](ch, linecodec.Encoder{})

	keeper := reactor.NewTimerKeeper(r, idleTimeout)
	filtered := newIdleFilter(r, keeper, svc, func() {
		log.Info().Str("peer", pair.Peer.String()).Log("idle timeout, closing")
		ch.Close()
	})

	disp := framing.NewPipelinedServer[string, string](filtered, 0)
	conn := framing.NewPipelinedConn[string, string](stream, sink, disp)

	return future.OrElse(conn, func(err error) future.Future[struct{}] {
		log.Err().Str("peer", pair.Peer.String()).Err(err).Log("connection closed with error")
		return future.ImmediateOk(struct{}{})
	})
}

// echoService answers every line with the same line, after delay has
// elapsed, mirroring the source's TimerKeeper-gated EchoService.
type echoService struct {
	r     *reactor.Reactor
	delay time.Duration
}

func (s *echoService) Call(req string) future.Future[string] {
	return future.Map(reactor.Delay(s.r, s.delay), func(struct{}) string { return req })
}

func (s *echoService) Close() future.Future[struct{}] { return future.ImmediateOk(struct{}{}) }

func (s *echoService) IsAvailable() bool { return true }

// idleFilter wraps a Service, starting an idle timer whenever the
// number of in-flight calls drops back to zero; if the timer fires
// before a new call arrives, onIdle runs (source's ExpiringFilter).
type idleFilter struct {
	next   framing.Service[string, string]
	r      *reactor.Reactor
	keeper *reactor.TimerKeeper
	onIdle func()

	mu         sync.Mutex
	generation uint64
	inFlight   int
}

func newIdleFilter(r *reactor.Reactor, keeper *reactor.TimerKeeper, next framing.Service[string, string], onIdle func()) *idleFilter {
	f := &idleFilter{next: next, r: r, keeper: keeper, onIdle: onIdle}
	f.armIdle()
	return f
}

func (f *idleFilter) armIdle() {
	f.mu.Lock()
	f.generation++
	gen := f.generation
	f.mu.Unlock()

	reactor.Spawn(f.r, future.Map(f.keeper.Delay(), func(struct{}) struct{} {
		f.mu.Lock()
		fire := f.generation == gen
		f.mu.Unlock()
		if fire {
			f.onIdle()
		}
		return struct{}{}
	}))
}

func (f *idleFilter) Call(req string) future.Future[string] {
	f.mu.Lock()
	f.generation++ // invalidate any armed idle timer
	f.inFlight++
	f.mu.Unlock()

	return future.Map(f.next.Call(req), func(resp string) string {
		f.mu.Lock()
		f.inFlight--
		idle := f.inFlight == 0
		f.mu.Unlock()
		if idle {
			f.armIdle()
		}
		return resp
	})
}

func (f *idleFilter) Close() future.Future[struct{}] { return f.next.Close() }

func (f *idleFilter) IsAvailable() bool { return f.next.IsAvailable() }
