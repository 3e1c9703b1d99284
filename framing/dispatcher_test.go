package framing

import (
	"testing"

	"github.com/joeycumines/asyncrt/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoUpperService struct{}

func (echoUpperService) Call(req string) future.Future[string] {
	return future.ImmediateOk(req + "!")
}
func (echoUpperService) Close() future.Future[struct{}] { return future.ImmediateOk(struct{}{}) }
func (echoUpperService) IsAvailable() bool              { return true }

func TestPipelinedServerPreservesOrder(t *testing.T) {
	w := future.NewTestWaker()
	s := NewPipelinedServer[string, string](echoUpperService{}, 0)
	s.Dispatch("a")
	s.Dispatch("b")

	p, ok := s.Poll(w)
	require.True(t, ok)
	v, _ := p.Value()
	assert.Equal(t, "a!", v)

	p, ok = s.Poll(w)
	require.True(t, ok)
	v, _ = p.Value()
	assert.Equal(t, "b!", v)

	_, ok = s.Poll(w)
	assert.False(t, ok)
}

func TestPipelinedServerFullWhenAtCapacity(t *testing.T) {
	s := NewPipelinedServer[string, string](echoUpperService{}, 1)
	assert.False(t, s.Full())
	s.Dispatch("a")
	assert.True(t, s.Full())
}

func TestMultiplexServerDeliversByID(t *testing.T) {
	w := future.NewTestWaker()
	s := NewMultiplexServer[string, string](echoUpperService{})
	s.Dispatch(1, "x")
	s.Dispatch(2, "y")

	seen := map[uint64]string{}
	for i := 0; i < 2; i++ {
		id, p, ok := s.Poll(w)
		require.True(t, ok)
		v, _ := p.Value()
		seen[id] = v
	}
	assert.Equal(t, "x!", seen[1])
	assert.Equal(t, "y!", seen[2])

	_, _, ok := s.Poll(w)
	assert.False(t, ok)
}

func TestPipelinedClientCallAndDeliver(t *testing.T) {
	w := future.NewTestWaker()
	c := NewPipelinedClient[string, string]()

	f1 := c.Call("req1")
	f2 := c.Call("req2")

	req, ok := c.NextRequest()
	require.True(t, ok)
	assert.Equal(t, "req1", req)

	req, ok = c.NextRequest()
	require.True(t, ok)
	assert.Equal(t, "req2", req)

	_, ok = c.NextRequest()
	assert.False(t, ok)

	require.NoError(t, c.Deliver("resp1"))
	p := f1.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, "resp1", v)

	require.NoError(t, c.Deliver("resp2"))
	p = f2.Poll(w)
	v, _ = p.Value()
	assert.Equal(t, "resp2", v)
}

func TestPipelinedClientDeliverWithNoOutstandingIsProtocolError(t *testing.T) {
	c := NewPipelinedClient[string, string]()
	err := c.Deliver("unexpected")
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestPipelinedClientFailFailsAllOutstanding(t *testing.T) {
	w := future.NewTestWaker()
	c := NewPipelinedClient[string, string]()
	f1 := c.Call("req1")
	_, _ = c.NextRequest()
	f2 := c.Call("req2") // still pendingSend

	c.Fail(ErrDispatchClosed)

	p := f1.Poll(w)
	require.True(t, p.IsErr())

	p = f2.Poll(w)
	require.True(t, p.IsErr())

	// further calls fail immediately, with the reason passed to Fail.
	f3 := c.Call("req3")
	p = f3.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, ErrDispatchClosed)
	assert.False(t, c.IsAvailable())
}

func TestMultiplexClientCallAndDeliver(t *testing.T) {
	w := future.NewTestWaker()
	c := NewMultiplexClient[string, string]()
	f1 := c.Call("req1")

	env, ok := c.NextRequest()
	require.True(t, ok)
	assert.Equal(t, "req1", env.Payload)

	require.NoError(t, c.Deliver(Envelope[string]{CallID: env.CallID, Payload: "resp1"}))
	p := f1.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, "resp1", v)
}

func TestMultiplexClientDeliverUnknownIDIsProtocolError(t *testing.T) {
	c := NewMultiplexClient[string, string]()
	err := c.Deliver(Envelope[string]{CallID: 999, Payload: "x"})
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}
