package netio

import (
	"crypto/tls"
	"io"
	"net"
	"sync"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
)

type tlsState uint8

const (
	tlsStateUnencrypted tlsState = iota
	tlsStateConnecting
	tlsStateEstablished
	tlsStateError
	tlsStateClosed
)

// defaultMinWriteSize is the default coalescing threshold below which
// small writes are batched into a single encrypted record (spec.md §4.8
// "coalesce only up to min_write_size, default 1500 bytes"). New
// channels take their threshold from the owning reactor's
// Options.TLSCoalesceSize, whose default is this same value.
const defaultMinWriteSize = 1500

// TLSSocketChannel extends the socket channel model with a handshake
// phase (spec.md §4.8). Go's crypto/tls has no WantRead/WantWrite
// non-blocking handshake mode the way the source's SSL library does —
// every call to tls.Conn blocks on its underlying net.Conn. This
// channel bridges that blocking API onto the reactor with dedicated
// goroutines per operation, delivering results via Reactor.Execute —
// the same bridge pattern reactor.SignalSource uses for os/signal,
// extended here because crypto/tls offers no readiness-based
// alternative either.
type TLSSocketChannel struct {
	r    *reactor.Reactor
	conn *tls.Conn

	minWriteSize int

	mu    sync.Mutex
	state tlsState
	err   error

	hsTask  future.Task
	hsArmed bool

	readBuf   []byte
	readErr   error
	readEOF   bool
	readTask  future.Task
	readArmed bool
	readBusy  bool

	pending     []byte
	waiters     []*flushWaiter
	flushActive bool
}

// flushWaiter tracks one Write/Flush call's outcome independently of
// whichever generation of c.waiters it was appended to — once a batch
// is stolen by flushLocked for its own goroutine, completion is
// recorded directly on each waiter rather than via a shared index,
// since the next generation of c.waiters starts back at index 0.
type flushWaiter struct {
	done  bool
	err   error
	armed bool
	task  future.Task
}

// NewTLSClient wraps conn (already TCP-connected) as a TLS client
// channel and starts the handshake immediately.
func NewTLSClient(r *reactor.Reactor, conn net.Conn, cfg *tls.Config) *TLSSocketChannel {
	c := &TLSSocketChannel{r: r, conn: tls.Client(conn, cfg), minWriteSize: r.Options().TLSCoalesceSize, state: tlsStateConnecting}
	go c.runHandshake()
	return c
}

// NewTLSServer wraps conn as a TLS server channel and starts the
// handshake immediately.
func NewTLSServer(r *reactor.Reactor, conn net.Conn, cfg *tls.Config) *TLSSocketChannel {
	c := &TLSSocketChannel{r: r, conn: tls.Server(conn, cfg), minWriteSize: r.Options().TLSCoalesceSize, state: tlsStateConnecting}
	go c.runHandshake()
	return c
}

// WithMinWriteSize overrides the write-coalescing threshold.
func (c *TLSSocketChannel) WithMinWriteSize(n int) *TLSSocketChannel {
	c.mu.Lock()
	c.minWriteSize = n
	c.mu.Unlock()
	return c
}

func (c *TLSSocketChannel) runHandshake() {
	err := c.conn.Handshake()
	c.r.Execute(func() {
		c.mu.Lock()
		if c.state != tlsStateConnecting {
			c.mu.Unlock()
			return
		}
		if err != nil {
			c.state = tlsStateError
			c.err = err
		} else {
			c.state = tlsStateEstablished
		}
		task, armed := c.hsTask, c.hsArmed
		c.hsArmed = false
		c.mu.Unlock()
		if armed {
			task.Unpark()
		}
	})
}

// Handshake returns a Future resolving once the TLS handshake
// completes (or fails).
func (c *TLSSocketChannel) Handshake() future.Future[struct{}] {
	return &tlsHandshakeFuture{c: c}
}

type tlsHandshakeFuture struct{ c *TLSSocketChannel }

func (f *tlsHandshakeFuture) Poll(w *future.Waker) future.Poll[struct{}] {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case tlsStateEstablished:
		return future.Ready(struct{}{})
	case tlsStateError, tlsStateClosed:
		return future.Err[struct{}](c.err)
	default:
		c.hsTask = w.Task()
		c.hsArmed = true
		return future.NotReady[struct{}]()
	}
}

// Read returns a Future yielding the next chunk of decrypted bytes, or
// nil on clean EOF. Renegotiation mid-read is not supported by
// crypto/tls's non-renegotiating default and surfaces as whatever error
// the standard library itself returns (spec.md §4.8 "Renegotiation
// during read/write is not supported — surfaces as NotSupported").
func (c *TLSSocketChannel) Read() future.Future[[]byte] {
	c.mu.Lock()
	if c.state != tlsStateEstablished {
		c.mu.Unlock()
		return future.Err[[]byte](ErrNotSupported)
	}
	if !c.readBusy && !c.readEOF && c.readErr == nil {
		c.readBusy = true
		c.mu.Unlock()
		go c.runRead()
	} else {
		c.mu.Unlock()
	}
	return &tlsReadFuture{c: c}
}

func (c *TLSSocketChannel) runRead() {
	buf := make([]byte, readBufferSize)
	n, err := c.conn.Read(buf)
	c.r.Execute(func() {
		c.mu.Lock()
		c.readBusy = false
		if n > 0 {
			c.readBuf = buf[:n]
		}
		if err != nil {
			if err == io.EOF {
				c.readEOF = true
			} else {
				c.readErr = err
			}
		}
		task, armed := c.readTask, c.readArmed
		c.readArmed = false
		c.mu.Unlock()
		if armed {
			task.Unpark()
		}
	})
}

type tlsReadFuture struct{ c *TLSSocketChannel }

func (f *tlsReadFuture) Poll(w *future.Waker) future.Poll[[]byte] {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readBuf != nil {
		b := c.readBuf
		c.readBuf = nil
		return future.Ready(b)
	}
	if c.readErr != nil {
		return future.Err[[]byte](c.readErr)
	}
	if c.readEOF {
		return future.Ready[[]byte](nil)
	}
	c.readTask = w.Task()
	c.readArmed = true
	return future.NotReady[[]byte]()
}

// Write queues buf for the connection, coalescing with any other
// pending bytes below minWriteSize before issuing a single encrypted
// write (spec.md §4.8). The returned Future resolves once buf's bytes
// are included in a completed flush.
func (c *TLSSocketChannel) Write(buf []byte) future.Future[struct{}] {
	c.mu.Lock()
	if c.state != tlsStateEstablished {
		c.mu.Unlock()
		return future.Err[struct{}](ErrNotSupported)
	}

	if len(c.pending) > 0 && len(c.pending)+len(buf) > c.minWriteSize {
		c.flushLocked()
	}
	c.pending = append(c.pending, buf...)
	wt := &flushWaiter{}
	c.waiters = append(c.waiters, wt)
	if len(c.pending) >= c.minWriteSize {
		c.flushLocked()
	}
	c.mu.Unlock()
	return &tlsWriteFuture{wt: wt}
}

// Flush forces an immediate write of whatever bytes are currently
// pending (spec.md §4.15's driver loop step 3: "Always flush the
// sink").
func (c *TLSSocketChannel) Flush() future.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return future.Ready(struct{}{})
	}
	wt := &flushWaiter{}
	c.waiters = append(c.waiters, wt)
	c.flushLocked()
	return &tlsWriteFuture{wt: wt}
}

func (c *TLSSocketChannel) flushLocked() {
	if c.flushActive || len(c.pending) == 0 {
		return
	}
	data := c.pending
	c.pending = nil
	waiters := c.waiters
	c.waiters = nil
	c.flushActive = true
	go c.runFlush(data, waiters)
}

func (c *TLSSocketChannel) runFlush(data []byte, waiters []*flushWaiter) {
	_, err := c.conn.Write(data)
	c.r.Execute(func() {
		c.mu.Lock()
		c.flushActive = false
		var toUnpark []future.Task
		for _, wt := range waiters {
			wt.done = true
			wt.err = err
			if wt.armed {
				toUnpark = append(toUnpark, wt.task)
			}
		}
		hasMore := len(c.pending) > 0
		if hasMore {
			c.flushLocked()
		}
		c.mu.Unlock()
		for _, t := range toUnpark {
			t.Unpark()
		}
	})
}

type tlsWriteFuture struct{ wt *flushWaiter }

func (f *tlsWriteFuture) Poll(w *future.Waker) future.Poll[struct{}] {
	wt := f.wt
	if wt.done {
		if wt.err != nil {
			return future.Err[struct{}](wt.err)
		}
		return future.Ready(struct{}{})
	}
	wt.task = w.Task()
	wt.armed = true
	return future.NotReady[struct{}]()
}

// Close tears down the TLS channel and its underlying connection.
func (c *TLSSocketChannel) Close() {
	c.mu.Lock()
	if c.state == tlsStateClosed {
		c.mu.Unlock()
		return
	}
	c.state = tlsStateClosed
	c.mu.Unlock()
	_ = c.conn.Close()
}
