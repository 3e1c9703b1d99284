package framing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/joeycumines/asyncrt/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkSource replays a fixed sequence of chunks, nil meaning EOF.
type chunkSource struct {
	chunks [][]byte
	i      int
}

func (s *chunkSource) Read() future.Future[[]byte] {
	if s.i >= len(s.chunks) {
		return future.ImmediateOk[[]byte](nil)
	}
	c := s.chunks[s.i]
	s.i++
	return future.ImmediateOk(c)
}

// byteLineDecoder is a minimal newline decoder used to exercise
// FramedStream/FramedSink without depending on internal/linecodec.
type byteLineDecoder struct{}

func (byteLineDecoder) Decode(q *ByteQueue) (string, bool, error) {
	buf := q.Bytes()
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return "", false, nil
	}
	frame := string(buf[:i])
	q.Advance(i + 1)
	return frame, true, nil
}

func (d byteLineDecoder) DecodeEOF(q *ByteQueue) (string, bool, error) {
	if q.Len() == 0 {
		return "", false, nil
	}
	frame := string(q.Bytes())
	q.Advance(q.Len())
	return frame, true, nil
}

type byteLineEncoder struct{}

func (byteLineEncoder) Encode(frame string, q *ByteQueue) error {
	q.Append([]byte(frame))
	q.Append([]byte{'\n'})
	return nil
}

func TestByteQueueAppendAdvance(t *testing.T) {
	var q ByteQueue
	q.Append([]byte("hello"))
	assert.Equal(t, 5, q.Len())
	q.Advance(2)
	assert.Equal(t, "llo", string(q.Bytes()))
}

func TestFramedStreamYieldsFramesAcrossReads(t *testing.T) {
	w := future.NewTestWaker()
	src := &chunkSource{chunks: [][]byte{[]byte("ab"), []byte("c\nd"), []byte("ef\n")}}
	fs := NewFramedStream[string](src, byteLineDecoder{})

	p := fs.Poll(w)
	opt, _ := p.Value()
	v, ok := opt.Get()
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	p = fs.Poll(w)
	opt, _ = p.Value()
	v, ok = opt.Get()
	require.True(t, ok)
	assert.Equal(t, "def", v)

	p = fs.Poll(w)
	opt, _ = p.Value()
	_, ok = opt.Get()
	assert.False(t, ok)
}

func TestFramedStreamDecodeEOFFlushesTrailingPartial(t *testing.T) {
	w := future.NewTestWaker()
	src := &chunkSource{chunks: [][]byte{[]byte("trailing")}}
	fs := NewFramedStream[string](src, byteLineDecoder{})

	p := fs.Poll(w)
	opt, _ := p.Value()
	v, ok := opt.Get()
	require.True(t, ok)
	assert.Equal(t, "trailing", v)

	p = fs.Poll(w)
	opt, _ = p.Value()
	_, ok = opt.Get()
	assert.False(t, ok)
}

type erroringDecoder struct{}

func (erroringDecoder) Decode(q *ByteQueue) (string, bool, error) {
	return "", false, errors.New("bad frame")
}
func (erroringDecoder) DecodeEOF(q *ByteQueue) (string, bool, error) {
	return "", false, errors.New("bad frame")
}

func TestFramedStreamPropagatesDecodeError(t *testing.T) {
	w := future.NewTestWaker()
	src := &chunkSource{chunks: [][]byte{[]byte("junk")}}
	fs := NewFramedStream[string](src, erroringDecoder{})
	p := fs.Poll(w)
	require.True(t, p.IsErr())

	// polling again must not re-invoke the decoder.
	p = fs.Poll(w)
	require.True(t, p.IsErr())
}

// recordingSink captures every Write call and always succeeds.
type recordingSink struct {
	writes      [][]byte
	flushCalled int
}

func (s *recordingSink) Write(buf []byte) future.Future[struct{}] {
	s.writes = append(s.writes, append([]byte(nil), buf...))
	return future.ImmediateOk(struct{}{})
}

func (s *recordingSink) Flush() future.Future[struct{}] {
	s.flushCalled++
	return future.ImmediateOk(struct{}{})
}

func TestFramedSinkEncodesAndFlushes(t *testing.T) {
	w := future.NewTestWaker()
	sink := &recordingSink{}
	fsink := NewFramedSink[string](sink, byteLineEncoder{})

	require.NoError(t, fsink.StartSend("hi"))
	p := fsink.PollComplete(w)
	require.True(t, p.IsReady())

	require.Len(t, sink.writes, 1)
	assert.Equal(t, "hi\n", string(sink.writes[0]))
	assert.Equal(t, 1, sink.flushCalled)
}

// notReadyOnceSink reports NotReady on the first Write poll then
// succeeds, exercising FramedSink's write-in-progress caching.
type notReadyOnceSink struct {
	writeCalls int
	writes     [][]byte
}

func (s *notReadyOnceSink) Write(buf []byte) future.Future[struct{}] {
	s.writes = append(s.writes, append([]byte(nil), buf...))
	return &onceNotReadyFuture{}
}

func (s *notReadyOnceSink) Flush() future.Future[struct{}] { return future.ImmediateOk(struct{}{}) }

type onceNotReadyFuture struct{ polls int }

func (f *onceNotReadyFuture) Poll(w *future.Waker) future.Poll[struct{}] {
	f.polls++
	if f.polls < 2 {
		return future.NotReady[struct{}]()
	}
	return future.Ready(struct{}{})
}

func TestFramedSinkPollCompleteRetriesPendingWrite(t *testing.T) {
	w := future.NewTestWaker()
	sink := &notReadyOnceSink{}
	fsink := NewFramedSink[string](sink, byteLineEncoder{})
	require.NoError(t, fsink.StartSend("x"))

	p := fsink.PollComplete(w)
	assert.True(t, p.IsNotReady())
	require.Len(t, sink.writes, 1)

	p = fsink.PollComplete(w)
	assert.True(t, p.IsReady())
	// write future must not have been recreated; same chunk seen once.
	assert.Len(t, sink.writes, 1)
}
