// Package framing implements the byte-oriented frame decoder/encoder
// contract and the pipelined/multiplexed RPC dispatchers built on top
// of it (spec.md §4.15).
package framing

import "github.com/joeycumines/asyncrt/future"

// ByteQueue is the growable byte buffer decoders read frames from and
// encoders append bytes to (spec.md §4.15's "byte queue").
type ByteQueue struct {
	buf []byte
}

// Append adds b's bytes to the tail of the queue.
func (q *ByteQueue) Append(b []byte) { q.buf = append(q.buf, b...) }

// Bytes returns the queue's current contents. The slice is only valid
// until the next Append or Advance call.
func (q *ByteQueue) Bytes() []byte { return q.buf }

// Len returns the number of buffered bytes.
func (q *ByteQueue) Len() int { return len(q.buf) }

// Advance drops the first n bytes, which a Decoder calls to commit
// exactly the bytes belonging to the frame it returned (spec.md §4.15
// "must not consume bytes it does not claim").
func (q *ByteQueue) Advance(n int) {
	copy(q.buf, q.buf[n:])
	q.buf = q.buf[:len(q.buf)-n]
}

// Decoder turns buffered bytes into frames of type T (spec.md §4.15
// "Decoder contract"). Decode reports (frame, true, nil) on a complete
// frame, (zero, false, nil) when more bytes are needed, or a non-nil
// error on a malformed frame. DecodeEOF commits any trailing partial
// data once the byte source has reached clean end-of-stream.
type Decoder[T any] interface {
	Decode(q *ByteQueue) (T, bool, error)
	DecodeEOF(q *ByteQueue) (T, bool, error)
}

// Encoder appends frame's encoded bytes to q (spec.md §4.15 "Encoder
// contract").
type Encoder[T any] interface {
	Encode(frame T, q *ByteQueue) error
}

// ByteSource is a readable byte stream yielding nil on clean EOF
// (spec.md §4.7's socket-channel stream-read semantics, generalized to
// any byte-producing I/O object).
type ByteSource interface {
	Read() future.Future[[]byte]
}

// ByteSink is a writable byte stream that may coalesce writes; Flush
// forces any buffered bytes out (spec.md §4.15's FramedSink
// "pollComplete tries to flush ... until the queue empties").
type ByteSink interface {
	Write(buf []byte) future.Future[struct{}]
	Flush() future.Future[struct{}]
}

// FramedStream wraps a ByteSource and a Decoder into a future.Stream of
// decoded frames (spec.md §4.15 "FramedStream").
type FramedStream[T any] struct {
	src ByteSource
	dec Decoder[T]

	q       ByteQueue
	readFut future.Future[[]byte]
	eof     bool
	err     error
}

// NewFramedStream builds a FramedStream reading from src and decoding
// with dec.
func NewFramedStream[T any](src ByteSource, dec Decoder[T]) *FramedStream[T] {
	return &FramedStream[T]{src: src, dec: dec}
}

// Poll implements future.Stream[T] (spec.md §4.15's FramedStream poll
// loop).
func (s *FramedStream[T]) Poll(w *future.Waker) future.Poll[future.Option[T]] {
	if s.err != nil {
		return future.Err[future.Option[T]](s.err)
	}

	for {
		if !s.eof {
			frame, ok, err := s.dec.Decode(&s.q)
			if err != nil {
				s.err = err
				return future.Err[future.Option[T]](err)
			}
			if ok {
				return future.Ready(future.Some(frame))
			}
		} else {
			frame, ok, err := s.dec.DecodeEOF(&s.q)
			if err != nil {
				s.err = err
				return future.Err[future.Option[T]](err)
			}
			if ok {
				return future.Ready(future.Some(frame))
			}
			return future.Ready(future.None[T]())
		}

		if s.readFut == nil {
			s.readFut = s.src.Read()
		}
		p := s.readFut.Poll(w)
		if p.IsNotReady() {
			return future.NotReady[future.Option[T]]()
		}
		s.readFut = nil
		if p.IsErr() {
			err, _ := p.Error()
			s.err = err
			return future.Err[future.Option[T]](err)
		}
		buf, _ := p.Value()
		if buf == nil {
			s.eof = true
			continue
		}
		s.q.Append(buf)
	}
}

// FramedSink wraps a ByteSink and an Encoder, buffering encoded frames
// until PollComplete flushes them out (spec.md §4.15 "FramedSink").
type FramedSink[T any] struct {
	sink ByteSink
	enc  Encoder[T]

	q        ByteQueue
	writeFut future.Future[struct{}]
	flushFut future.Future[struct{}]
}

// NewFramedSink builds a FramedSink writing to sink and encoding with
// enc.
func NewFramedSink[T any](sink ByteSink, enc Encoder[T]) *FramedSink[T] {
	return &FramedSink[T]{sink: sink, enc: enc}
}

// StartSend encodes item into the outgoing queue synchronously (spec.md
// §4.15 "startSend(item) encodes into the queue synchronously (may
// fail)").
func (s *FramedSink[T]) StartSend(item T) error {
	return s.enc.Encode(item, &s.q)
}

// PollComplete hands the outgoing queue to the sink as one Write of all
// its bytes, waits for that write to finish, then flushes the
// underlying sink (spec.md §4.15 "pollComplete tries to flush ... until
// the queue empties or the sink returns not-ready/error"). It builds no
// gather-write vector of its own.
func (s *FramedSink[T]) PollComplete(w *future.Waker) future.Poll[struct{}] {
	for s.writeFut != nil || s.q.Len() > 0 {
		if s.writeFut == nil {
			buf := append([]byte(nil), s.q.Bytes()...)
			s.q.Advance(len(buf))
			s.writeFut = s.sink.Write(buf)
		}
		p := s.writeFut.Poll(w)
		if p.IsNotReady() {
			return future.NotReady[struct{}]()
		}
		s.writeFut = nil
		if p.IsErr() {
			err, _ := p.Error()
			return future.Err[struct{}](err)
		}
	}

	if s.flushFut == nil {
		s.flushFut = s.sink.Flush()
	}
	p := s.flushFut.Poll(w)
	if p.IsNotReady() {
		return future.NotReady[struct{}]()
	}
	s.flushFut = nil
	if p.IsErr() {
		err, _ := p.Error()
		return future.Err[struct{}](err)
	}
	return future.Ready(struct{}{})
}
