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

const (
	// readBufferSize is the chunk size used for each readv/read call
	// against a socket's underlying fd.
	readBufferSize = 4096
)

type channelState uint8

const (
	stateInited channelState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// writeChunk is one queued outgoing buffer in a writer token's chain
// (spec.md §4.7 "writer token owns a chain of outgoing byte buffers").
type writeChunk struct {
	buf []byte
	off int // bytes of buf already written
}

// SocketChannel is a non-blocking TCP connection driven by its owning
// Reactor's poller (spec.md §4.7). States: Inited -> Connecting ->
// Connected -> Closed.
type SocketChannel struct {
	r  *reactor.Reactor
	io *reactor.IoObject
	fd int

	mu    sync.Mutex
	state channelState

	writeShutdownPending bool
	writeShutdown        bool
	readShutdown         bool

	registered bool
	interest   reactor.IOEvent

	connectTok *reactor.CompletionToken

	readTok     *reactor.CompletionToken
	readBufs    list.List // of []byte, accumulated for the stream reader
	readEOF     bool

	writeTok  *reactor.CompletionToken
	writeList list.List // of *writeChunk
}

// NewSocketChannel wraps an already-nonblocking, already-connected fd
// (e.g. one handed out by a ServerSocket's accept loop) in a
// SocketChannel bound to r.
func NewSocketChannel(r *reactor.Reactor, fd int) *SocketChannel {
	c := &SocketChannel{r: r, fd: fd, state: stateConnected}
	c.io = reactor.NewIoObject(r, fd)
	c.writeList.Init()
	c.readBufs.Init()
	return c
}

// Dial creates a non-blocking socket and begins connecting to addr,
// returning the channel immediately (spec.md §4.7 "connect(addr):
// initiates non-blocking connect").
func Dial(r *reactor.Reactor, network string, addr *net.TCPAddr) (*SocketChannel, future.Future[struct{}], error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("netio: socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, nil, fmt.Errorf("netio: set nonblocking: %w", err)
	}

	sa, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, nil, err
	}

	c := &SocketChannel{r: r, fd: fd, state: stateConnecting}
	c.io = reactor.NewIoObject(r, fd)
	c.writeList.Init()
	c.readBufs.Init()

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, nil, fmt.Errorf("netio: connect: %w", err)
	}

	tok := reactor.NewCompletionToken(reactor.OpConnect)
	tok.Attach(c.io)
	c.connectTok = tok
	if err := c.ensureRegistered(reactor.EventWrite | reactor.EventError); err != nil {
		return nil, nil, err
	}

	return c, &connectFuture{tok: tok}, nil
}

func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("netio: invalid address %v", addr)
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	copy(sa.Addr[:], ip6)
	return &sa, nil
}

// ensureRegistered registers the fd with the reactor's poller at the
// given interest set if not already registered, or widens the existing
// interest set via ModifyFD.
func (c *SocketChannel) ensureRegistered(events reactor.IOEvent) error {
	if !c.registered {
		c.registered = true
		c.interest = events
		return c.r.RegisterFD(c.fd, events, c.onReadiness)
	}
	if c.interest&events == events {
		return nil
	}
	c.interest |= events
	return c.r.ModifyFD(c.fd, c.interest)
}

func (c *SocketChannel) narrowInterest(remove reactor.IOEvent) {
	if !c.registered {
		return
	}
	next := c.interest &^ remove
	if next == c.interest {
		return
	}
	c.interest = next
	_ = c.r.ModifyFD(c.fd, c.interest)
}

// onReadiness is the poller callback driving connect completion, the
// stream reader, and the writer queue (spec.md §4.7/§4.6 "watcher
// callback (per fd readiness / timer fire)").
func (c *SocketChannel) onReadiness(ev reactor.IOEvent) {
	c.mu.Lock()
	switch c.state {
	case stateConnecting:
		c.completeConnectLocked(ev)
		c.mu.Unlock()
		return
	case stateClosed:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if ev&(reactor.EventRead|reactor.EventHangup|reactor.EventError) != 0 {
		c.doRead()
	}
	if ev&(reactor.EventWrite|reactor.EventError) != 0 {
		c.doWrite()
	}
}

func (c *SocketChannel) completeConnectLocked(ev reactor.IOEvent) {
	tok := c.connectTok
	c.connectTok = nil
	c.narrowInterest(reactor.EventWrite)

	if ev&reactor.EventError != 0 {
		c.state = stateClosed
		if tok != nil {
			tok.NotifyDone(fmt.Errorf("netio: connect: %w", unix.ECONNREFUSED))
		}
		return
	}

	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		c.state = stateClosed
		if tok != nil {
			var cerr error
			if err != nil {
				cerr = err
			} else {
				cerr = unix.Errno(errno)
			}
			tok.NotifyDone(fmt.Errorf("netio: connect: %w", cerr))
		}
		return
	}

	c.state = stateConnected
	if tok != nil {
		tok.NotifyDone(nil)
	}
}

// doRead drains the stream reader token, reading in a bounded batch
// (spec.md §4.7 "Per-event batching: the read path reads repeatedly on
// a single readiness event up to a bounded count (12 iterations)").
func (c *SocketChannel) doRead() {
	c.mu.Lock()
	tok := c.readTok
	if tok == nil || c.readShutdown {
		c.mu.Unlock()
		return
	}
	limit := c.r.Options().ReadBatchLimit
	c.mu.Unlock()

	for i := 0; i < limit; i++ {
		buf := make([]byte, readBufferSize)
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.mu.Lock()
			c.readBufs.PushBack(buf[:n])
			c.mu.Unlock()
			tok.DataReady()
			if n < readBufferSize {
				// short read: no more to drain this round.
				return
			}
			continue
		}
		if n == 0 {
			c.mu.Lock()
			c.readEOF = true
			c.readTok = nil
			c.narrowInterest(reactor.EventRead)
			c.mu.Unlock()
			tok.NotifyDone(nil)
			return
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		c.mu.Lock()
		c.readTok = nil
		c.narrowInterest(reactor.EventRead)
		c.mu.Unlock()
		tok.NotifyDone(fmt.Errorf("netio: read: %w", err))
		return
	}
}

// doWrite flushes the writer chain via writev, tracking partial
// progress across calls (spec.md §4.7 "updates the token's iovec cursor
// with (total_written, iovs_fully_consumed, partial_byte_offset)").
func (c *SocketChannel) doWrite() {
	c.mu.Lock()
	tok := c.writeTok
	if tok == nil {
		c.mu.Unlock()
		return
	}

	for c.writeList.Len() > 0 {
		iovs := make([][]byte, 0, c.writeList.Len())
		for e := c.writeList.Front(); e != nil; e = e.Next() {
			wc := e.Value.(*writeChunk)
			iovs = append(iovs, wc.buf[wc.off:])
		}
		c.mu.Unlock()

		n, err := unix.Writev(c.fd, iovs)

		c.mu.Lock()
		if n > 0 {
			remaining := n
			for remaining > 0 && c.writeList.Len() > 0 {
				front := c.writeList.Front()
				wc := front.Value.(*writeChunk)
				avail := len(wc.buf) - wc.off
				if remaining < avail {
					wc.off += remaining
					remaining = 0
					break
				}
				remaining -= avail
				c.writeList.Remove(front)
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				c.mu.Unlock()
				return
			}
			c.writeTok = nil
			c.narrowInterest(reactor.EventWrite)
			werr := ErrConnectionAborted
			if err == unix.EPIPE {
				werr = ErrConnectionAborted
			}
			c.mu.Unlock()
			tok.NotifyDone(fmt.Errorf("netio: write: %w: %v", werr, err))
			return
		}
	}

	c.writeTok = nil
	c.narrowInterest(reactor.EventWrite)
	pending := c.writeShutdownPending
	c.mu.Unlock()

	tok.NotifyDone(nil)
	if pending {
		c.performShutdownWrite()
	}
}

// Read returns a Future yielding the next chunk of bytes read from the
// socket, or nil on clean EOF (spec.md §4.7's "stream" token variant:
// "poll_stream returns Ready(Some(buf)) while buffer non-empty,
// Ready(None) on clean EOF").
func (c *SocketChannel) Read() future.Future[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readTok == nil {
		tok := reactor.NewCompletionToken(reactor.OpRead)
		tok.Attach(c.io)
		c.readTok = tok
		_ = c.ensureRegistered(reactor.EventRead)
	}
	return &readStreamFuture{c: c, tok: c.readTok}
}

// Write enqueues buf for writing and returns a Future resolving once
// every byte has been accepted by the kernel (spec.md §4.7's writer
// token "when the chain empties, notify_done").
func (c *SocketChannel) Write(buf []byte) future.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeShutdown {
		return future.Err[struct{}](ErrConnectionAborted)
	}
	c.writeList.PushBack(&writeChunk{buf: buf})
	if c.writeTok == nil {
		tok := reactor.NewCompletionToken(reactor.OpWrite)
		tok.Attach(c.io)
		c.writeTok = tok
		_ = c.ensureRegistered(reactor.EventWrite)
	}
	return &writeFuture{tok: c.writeTok}
}

// Flush implements framing.ByteSink. A SocketChannel has no write-side
// buffering layer of its own — every Write already resolves only once
// its bytes have been handed to the kernel — so Flush is a no-op
// completing immediately.
func (c *SocketChannel) Flush() future.Future[struct{}] {
	return future.ImmediateOk(struct{}{})
}

// ShutdownWrite half-closes the write side once any queued writes
// drain (spec.md §4.7 "shutdownWrite sets the pending flag and performs
// the half-close once the queue drains").
func (c *SocketChannel) ShutdownWrite() {
	c.mu.Lock()
	if c.writeShutdown || c.writeShutdownPending {
		c.mu.Unlock()
		return
	}
	c.writeShutdownPending = true
	hasQueue := c.writeTok != nil
	c.mu.Unlock()

	if !hasQueue {
		c.performShutdownWrite()
	}
}

func (c *SocketChannel) performShutdownWrite() {
	c.mu.Lock()
	if c.writeShutdown {
		c.mu.Unlock()
		return
	}
	c.writeShutdown = true
	c.writeShutdownPending = false
	c.mu.Unlock()
	_ = unix.Shutdown(c.fd, unix.SHUT_WR)
}

// Close tears down the channel: cancels every pending token with
// IOObjectShutdown and closes the fd.
func (c *SocketChannel) Close() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	registered := c.registered
	c.registered = false
	c.mu.Unlock()

	c.io.Close()
	if registered {
		_ = c.r.UnregisterFD(c.fd)
	}
	_ = unix.Close(c.fd)
}

type connectFuture struct{ tok *reactor.CompletionToken }

func (f *connectFuture) Poll(w *future.Waker) future.Poll[struct{}] {
	switch f.tok.State() {
	case reactor.TokenDone:
		if err := f.tok.Err(); err != nil {
			return future.Err[struct{}](err)
		}
		return future.Ready(struct{}{})
	case reactor.TokenCancelled:
		return future.Err[struct{}](f.tok.Err())
	default:
		f.tok.Park(w)
		return future.NotReady[struct{}]()
	}
}

type readStreamFuture struct {
	c   *SocketChannel
	tok *reactor.CompletionToken
}

func (f *readStreamFuture) Poll(w *future.Waker) future.Poll[[]byte] {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	if e := f.c.readBufs.Front(); e != nil {
		f.c.readBufs.Remove(e)
		return future.Ready(e.Value.([]byte))
	}

	switch f.tok.State() {
	case reactor.TokenCancelled:
		return future.Err[[]byte](f.tok.Err())
	case reactor.TokenDone:
		if err := f.tok.Err(); err != nil {
			return future.Err[[]byte](err)
		}
		return future.Ready[[]byte](nil)
	default:
		f.tok.Park(w)
		return future.NotReady[[]byte]()
	}
}

type writeFuture struct{ tok *reactor.CompletionToken }

func (f *writeFuture) Poll(w *future.Waker) future.Poll[struct{}] {
	switch f.tok.State() {
	case reactor.TokenDone:
		if err := f.tok.Err(); err != nil {
			return future.Err[struct{}](err)
		}
		return future.Ready(struct{}{})
	case reactor.TokenCancelled:
		return future.Err[struct{}](f.tok.Err())
	default:
		f.tok.Park(w)
		return future.NotReady[struct{}]()
	}
}
