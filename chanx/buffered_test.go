package chanx

import (
	"testing"

	"github.com/joeycumines/asyncrt/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSendWithinCapacityCompletesImmediately(t *testing.T) {
	w := future.NewTestWaker()
	s, r := NewBuffered[int](2)
	p := s.Send(1).Poll(w)
	require.True(t, p.IsReady())

	rp := r.Poll(w)
	v, _ := rp.Value()
	item, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, 1, item)
}

func TestBufferedSendBlocksWhenFull(t *testing.T) {
	w := future.NewTestWaker()
	s, r := NewBuffered[int](1)
	require.True(t, s.Send(1).Poll(w).IsReady())

	sendFut := s.Send(2)
	p := sendFut.Poll(w)
	assert.True(t, p.IsNotReady()) // buffer full, parks as a writer

	// reading drains 1; the parked writer's 2 moves into the freed slot.
	rp := r.Poll(w)
	v, _ := rp.Value()
	item, _ := v.Get()
	assert.Equal(t, 1, item)

	// the parked send should now be able to complete.
	p = sendFut.Poll(w)
	assert.True(t, p.IsReady())

	rp = r.Poll(w)
	v, _ = rp.Value()
	item, _ = v.Get()
	assert.Equal(t, 2, item)
}

func TestBufferedCloseYieldsEOFAfterDrain(t *testing.T) {
	w := future.NewTestWaker()
	s, r := NewBuffered[int](2)
	require.True(t, s.Send(1).Poll(w).IsReady())
	s.Close()

	rp := r.Poll(w)
	v, _ := rp.Value()
	item, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, 1, item)

	rp = r.Poll(w)
	v, _ = rp.Value()
	_, ok = v.Get()
	assert.False(t, ok)
}

func TestBufferedSendAfterCloseFails(t *testing.T) {
	w := future.NewTestWaker()
	s, _ := NewBuffered[int](1)
	s.Close()
	p := s.Send(1).Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestRingPushPopWraparound(t *testing.T) {
	ring := newRing[int](2)
	assert.Equal(t, 2, ring.Cap())
	assert.True(t, ring.PushBack(1))
	assert.True(t, ring.PushBack(2))
	assert.False(t, ring.PushBack(3))

	v, ok := ring.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, ring.PushBack(3))
	v, ok = ring.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	v, ok = ring.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = ring.PopFront()
	assert.False(t, ok)
}
