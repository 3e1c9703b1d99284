package netio

import (
	"container/list"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
)

// AcceptPair is one accepted connection and its peer address (spec.md
// §4.9 "pushing successful (socket, peer) pairs into an
// AcceptCompletionToken's queue").
type AcceptPair struct {
	Channel *SocketChannel
	Peer    net.Addr
}

// ServerSocket listens for and accepts inbound TCP connections,
// exposing them as a stream future (spec.md §4.9).
type ServerSocket struct {
	r  *reactor.Reactor
	io *reactor.IoObject
	fd int

	mu      sync.Mutex
	tok     *reactor.CompletionToken
	pending list.List // of AcceptPair
	closed  bool

	registered bool
}

// Listen creates a non-blocking listening socket bound to addr with
// the given backlog.
func Listen(r *reactor.Reactor, addr *net.TCPAddr, backlog int) (*ServerSocket, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netio: socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: set nonblocking: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: setsockopt SO_REUSEADDR: %w", err)
	}

	sa, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: listen: %w", err)
	}

	s := &ServerSocket{r: r, fd: fd}
	s.io = reactor.NewIoObject(r, fd)
	s.pending.Init()
	return s, nil
}

// Accept returns a Future-of-stream yielding one AcceptPair per ready
// connection (spec.md §4.9's stream API: "Ready(Some(pair)) while
// queued, NotReady when empty, Ready(None) when forcibly closed").
func (s *ServerSocket) Accept() future.Future[*AcceptPair] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil && !s.closed {
		tok := reactor.NewCompletionToken(reactor.OpRead)
		tok.Attach(s.io)
		s.tok = tok
		if !s.registered {
			s.registered = true
			_ = s.r.RegisterFD(s.fd, reactor.EventRead, s.onReadiness)
		}
	}
	return &acceptFuture{s: s, tok: s.tok}
}

// onReadiness loops accept() until EAGAIN (spec.md §4.9: "on each
// readiness event it loops accept() until EAGAIN").
func (s *ServerSocket) onReadiness(reactor.IOEvent) {
	for {
		nfd, sa, err := unix.Accept(s.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.mu.Lock()
			tok := s.tok
			s.mu.Unlock()
			if tok != nil {
				tok.NotifyDone(fmt.Errorf("netio: accept: %w", err))
			}
			return
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			continue
		}

		ch := NewSocketChannel(s.r, nfd)
		pair := &AcceptPair{Channel: ch, Peer: sockaddrToNetAddr(sa)}

		s.mu.Lock()
		s.pending.PushBack(pair)
		tok := s.tok
		s.mu.Unlock()
		if tok != nil {
			tok.DataReady()
		}
	}
}

func sockaddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return nil
	}
}

// Close stops accepting and fails the stream terminally (spec.md §4.9
// "Ready(None) when forcibly closed").
func (s *ServerSocket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tok := s.tok
	registered := s.registered
	s.registered = false
	s.mu.Unlock()

	if registered {
		_ = s.r.UnregisterFD(s.fd)
	}
	_ = unix.Close(s.fd)
	if tok != nil {
		tok.NotifyDone(nil)
	}
}

type acceptFuture struct {
	s   *ServerSocket
	tok *reactor.CompletionToken
}

func (f *acceptFuture) Poll(w *future.Waker) future.Poll[*AcceptPair] {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if e := f.s.pending.Front(); e != nil {
		f.s.pending.Remove(e)
		return future.Ready(e.Value.(*AcceptPair))
	}
	if f.tok == nil {
		// Closed with nothing ever having been attached.
		return future.Ready[*AcceptPair](nil)
	}
	switch f.tok.State() {
	case reactor.TokenDone:
		if err := f.tok.Err(); err != nil {
			return future.Err[*AcceptPair](err)
		}
		return future.Ready[*AcceptPair](nil)
	case reactor.TokenCancelled:
		return future.Err[*AcceptPair](f.tok.Err())
	default:
		f.tok.Park(w)
		return future.NotReady[*AcceptPair]()
	}
}
