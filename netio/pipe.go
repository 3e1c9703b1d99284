package netio

import (
	"container/list"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
)

// PipeChannel shares SocketChannel's read/write model over separate
// read and write file descriptors, either of which may be absent
// (spec.md §4.10). A read-only pipe errors on write attempts; a
// write-only pipe errors on read attempts.
type PipeChannel struct {
	r *reactor.Reactor

	readFD, writeFD int // -1 if absent
	readIO          *reactor.IoObject
	writeIO         *reactor.IoObject

	mu sync.Mutex

	readRegistered  bool
	writeRegistered bool

	readTok  *reactor.CompletionToken
	readBufs list.List
	readEOF  bool

	writeTok      *reactor.CompletionToken
	writeList     list.List
	writeShutdown bool
}

// NewPipeChannel wraps readFD and/or writeFD (pass -1 for an absent
// side) as a PipeChannel bound to r. Both fds, if present, must already
// be non-blocking.
func NewPipeChannel(r *reactor.Reactor, readFD, writeFD int) *PipeChannel {
	p := &PipeChannel{r: r, readFD: readFD, writeFD: writeFD}
	if readFD >= 0 {
		p.readIO = reactor.NewIoObject(r, readFD)
	}
	if writeFD >= 0 {
		p.writeIO = reactor.NewIoObject(r, writeFD)
	}
	p.readBufs.Init()
	p.writeList.Init()
	return p
}

// Read returns a Future yielding the next chunk read from the pipe, or
// nil on EOF. Fails with ErrNotSupported if this pipe has no read fd.
func (p *PipeChannel) Read() future.Future[[]byte] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readFD < 0 {
		return future.Err[[]byte](ErrNotSupported)
	}
	if p.readTok == nil {
		tok := reactor.NewCompletionToken(reactor.OpRead)
		tok.Attach(p.readIO)
		p.readTok = tok
		if !p.readRegistered {
			p.readRegistered = true
			_ = p.r.RegisterFD(p.readFD, reactor.EventRead, p.onReadReady)
		}
	}
	return &pipeReadFuture{p: p, tok: p.readTok}
}

// Write enqueues buf and returns a Future resolving once fully
// accepted by the kernel. Fails with ErrNotSupported if this pipe has
// no write fd.
func (p *PipeChannel) Write(buf []byte) future.Future[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeFD < 0 {
		return future.Err[struct{}](ErrNotSupported)
	}
	if p.writeShutdown {
		return future.Err[struct{}](ErrBrokenPipe)
	}
	p.writeList.PushBack(&writeChunk{buf: buf})
	if p.writeTok == nil {
		tok := reactor.NewCompletionToken(reactor.OpWrite)
		tok.Attach(p.writeIO)
		p.writeTok = tok
		if !p.writeRegistered {
			p.writeRegistered = true
			_ = p.r.RegisterFD(p.writeFD, reactor.EventWrite, p.onWriteReady)
		}
	}
	return &pipeWriteFuture{tok: p.writeTok}
}

// Flush implements framing.ByteSink. A PipeChannel has no write-side
// buffering layer of its own, so Flush is a no-op completing
// immediately.
func (p *PipeChannel) Flush() future.Future[struct{}] {
	return future.ImmediateOk(struct{}{})
}

// ShutdownWrite closes the write fd immediately and fails every queued
// write with ErrBrokenPipe (spec.md §4.10 "Shutdown-write closes the
// write fd and fails pending writes with BrokenPipe").
func (p *PipeChannel) ShutdownWrite() {
	p.mu.Lock()
	if p.writeShutdown || p.writeFD < 0 {
		p.mu.Unlock()
		return
	}
	p.writeShutdown = true
	tok := p.writeTok
	p.writeTok = nil
	fd := p.writeFD
	registered := p.writeRegistered
	p.writeRegistered = false
	p.mu.Unlock()

	if registered {
		_ = p.r.UnregisterFD(fd)
	}
	_ = unix.Close(fd)
	if tok != nil {
		tok.NotifyDone(ErrBrokenPipe)
	}
}

func (p *PipeChannel) onReadReady(reactor.IOEvent) {
	p.mu.Lock()
	tok := p.readTok
	if tok == nil {
		p.mu.Unlock()
		return
	}
	limit := p.r.Options().ReadBatchLimit
	fd := p.readFD
	p.mu.Unlock()

	for i := 0; i < limit; i++ {
		buf := make([]byte, readBufferSize)
		n, err := unix.Read(fd, buf)
		if n > 0 {
			p.mu.Lock()
			p.readBufs.PushBack(buf[:n])
			p.mu.Unlock()
			tok.DataReady()
			if n < readBufferSize {
				return
			}
			continue
		}
		if n == 0 {
			p.mu.Lock()
			p.readEOF = true
			p.readTok = nil
			p.mu.Unlock()
			tok.NotifyDone(nil)
			return
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		p.mu.Lock()
		p.readTok = nil
		p.mu.Unlock()
		tok.NotifyDone(fmt.Errorf("netio: read: %w", err))
		return
	}
}

func (p *PipeChannel) onWriteReady(reactor.IOEvent) {
	p.mu.Lock()
	tok := p.writeTok
	if tok == nil {
		p.mu.Unlock()
		return
	}
	fd := p.writeFD

	for p.writeList.Len() > 0 {
		front := p.writeList.Front()
		wc := front.Value.(*writeChunk)
		buf := wc.buf[wc.off:]
		p.mu.Unlock()

		n, err := unix.Write(fd, buf)

		p.mu.Lock()
		if n > 0 {
			wc.off += n
			if wc.off >= len(wc.buf) {
				p.writeList.Remove(front)
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				p.mu.Unlock()
				return
			}
			p.writeTok = nil
			p.mu.Unlock()
			tok.NotifyDone(fmt.Errorf("netio: write: %w: %v", ErrBrokenPipe, err))
			return
		}
	}

	p.writeTok = nil
	p.mu.Unlock()
	tok.NotifyDone(nil)
}

// Close cancels every pending token with IOObjectShutdown and closes
// both fds.
func (p *PipeChannel) Close() {
	p.mu.Lock()
	readFD, writeFD := p.readFD, p.writeFD
	readRegistered, writeRegistered := p.readRegistered, p.writeRegistered
	p.readRegistered, p.writeRegistered = false, false
	p.mu.Unlock()

	if p.readIO != nil {
		p.readIO.Close()
	}
	if p.writeIO != nil {
		p.writeIO.Close()
	}
	if readFD >= 0 {
		if readRegistered {
			_ = p.r.UnregisterFD(readFD)
		}
		_ = unix.Close(readFD)
	}
	if writeFD >= 0 {
		if writeRegistered {
			_ = p.r.UnregisterFD(writeFD)
		}
		_ = unix.Close(writeFD)
	}
}

type pipeReadFuture struct {
	p   *PipeChannel
	tok *reactor.CompletionToken
}

func (f *pipeReadFuture) Poll(w *future.Waker) future.Poll[[]byte] {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()

	if e := f.p.readBufs.Front(); e != nil {
		f.p.readBufs.Remove(e)
		return future.Ready(e.Value.([]byte))
	}
	switch f.tok.State() {
	case reactor.TokenDone:
		if err := f.tok.Err(); err != nil {
			return future.Err[[]byte](err)
		}
		return future.Ready[[]byte](nil)
	case reactor.TokenCancelled:
		return future.Err[[]byte](f.tok.Err())
	default:
		f.tok.Park(w)
		return future.NotReady[[]byte]()
	}
}

type pipeWriteFuture struct{ tok *reactor.CompletionToken }

func (f *pipeWriteFuture) Poll(w *future.Waker) future.Poll[struct{}] {
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
