package linecodec

import (
	"testing"

	"github.com/joeycumines/asyncrt/framing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderStripsNewlineByDefault(t *testing.T) {
	d := NewDecoder()
	var q framing.ByteQueue
	q.Append([]byte("hello\n"))

	frame, ok, err := d.Decode(&q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", frame)
	assert.Equal(t, 0, q.Len())
}

func TestDecoderWaitsForMoreBytes(t *testing.T) {
	d := NewDecoder()
	var q framing.ByteQueue
	q.Append([]byte("partial"))

	_, ok, err := d.Decode(&q)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 7, q.Len())
}

func TestDecoderCarriageReturnNewline(t *testing.T) {
	d := NewDecoder()
	var q framing.ByteQueue
	q.Append([]byte("hi\r\nrest"))

	frame, ok, err := d.Decode(&q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", frame)
	assert.Equal(t, "rest", string(q.Bytes()))
}

func TestDecoderKeepsDelimiterWhenNotStripping(t *testing.T) {
	d := NewDecoder()
	d.StripDelimiter = false
	var q framing.ByteQueue
	q.Append([]byte("hi\n"))

	frame, ok, err := d.Decode(&q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi\n", frame)
}

func TestDecoderRejectsOverlongLine(t *testing.T) {
	d := NewDecoder()
	d.MaxLength = 3
	var q framing.ByteQueue
	q.Append([]byte("toolong\n"))

	_, ok, err := d.Decode(&q)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDecoderDiscardsRestOfOverlongLineAcrossCalls(t *testing.T) {
	d := NewDecoder()
	d.MaxLength = 3
	var q framing.ByteQueue

	// no newline yet, already past max length: enters discarding mode.
	q.Append([]byte("toolongline"))
	_, ok, err := d.Decode(&q)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, 0, q.Len())

	// rest of the discarded line arrives with its terminator, followed
	// by a new line short enough to fit MaxLength.
	q.Append([]byte("rest-of-line\nok\n"))
	_, ok, err = d.Decode(&q)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "ok\n", string(q.Bytes()))

	// decoder resumes normal framing after the discarded line's end.
	frame, ok, err := d.Decode(&q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ok", frame)
}

func TestDecodeEOFFlushesTrailingPartial(t *testing.T) {
	d := NewDecoder()
	var q framing.ByteQueue
	q.Append([]byte("no newline"))

	frame, ok, err := d.DecodeEOF(&q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "no newline", frame)
}

func TestEncoderAppendsNewline(t *testing.T) {
	var q framing.ByteQueue
	enc := Encoder{}
	require.NoError(t, enc.Encode("hello", &q))
	assert.Equal(t, "hello\n", string(q.Bytes()))
}
