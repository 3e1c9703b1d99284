package framing

import (
	"testing"

	"github.com/joeycumines/asyncrt/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelinedConnEchoesThenClosesOnEOF(t *testing.T) {
	w := future.NewTestWaker()
	src := &chunkSource{chunks: [][]byte{[]byte("one\ntwo\n")}}
	stream := NewFramedStream[string](src, byteLineDecoder{})

	sink := &recordingSink{}
	fsink := NewFramedSink[string](sink, byteLineEncoder{})

	disp := NewPipelinedServer[string, string](echoUpperService{}, 0)
	conn := NewPipelinedConn[string, string](stream, fsink, disp)

	var p future.Poll[struct{}]
	for i := 0; i < 10; i++ {
		p = conn.Poll(w)
		if !p.IsNotReady() {
			break
		}
	}
	require.True(t, p.IsReady())
	require.Len(t, sink.writes, 2)
	assert.Equal(t, "one!\n", string(sink.writes[0]))
	assert.Equal(t, "two!\n", string(sink.writes[1]))
}

func TestPipelinedConnPropagatesStreamError(t *testing.T) {
	w := future.NewTestWaker()
	src := &chunkSource{chunks: [][]byte{[]byte("junk")}}
	stream := NewFramedStream[string](src, erroringDecoder{})

	sink := &recordingSink{}
	fsink := NewFramedSink[string](sink, byteLineEncoder{})

	disp := NewPipelinedServer[string, string](echoUpperService{}, 0)
	conn := NewPipelinedConn[string, string](stream, fsink, disp)

	p := conn.Poll(w)
	require.True(t, p.IsErr())
}
