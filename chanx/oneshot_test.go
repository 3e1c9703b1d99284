package chanx

import (
	"testing"

	"github.com/joeycumines/asyncrt/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShotSendThenReceive(t *testing.T) {
	w := future.NewTestWaker()
	s, r := NewOneShot[string]()
	require.NoError(t, s.Send("hello"))

	p := r.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, "hello", v)
}

func TestOneShotReceiveBeforeSendParksThenResolves(t *testing.T) {
	s, r := NewOneShot[int]()
	unparked := make(chan struct{}, 1)
	w := future.NewWaker(future.NewTask(future.NewTaskID(), future.UnparkFunc(func() {
		unparked <- struct{}{}
	})))

	p := r.Poll(w)
	assert.True(t, p.IsNotReady())

	require.NoError(t, s.Send(42))
	<-unparked

	p = r.Poll(future.NewTestWaker())
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, 42, v)
}

func TestOneShotSenderDropWithoutSendIsCancelled(t *testing.T) {
	w := future.NewTestWaker()
	s, r := NewOneShot[int]()
	s.Close()

	p := r.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestOneShotSendAfterReceiverDropDiscarded(t *testing.T) {
	s, r := NewOneShot[int]()
	r.Close()
	err := s.Send(1)
	assert.NoError(t, err)
}

func TestOneShotDoubleSendFails(t *testing.T) {
	s, _ := NewOneShot[int]()
	require.NoError(t, s.Send(1))
	err := s.Send(2)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestOneShotReceivePastResolutionIsInvalidPoll(t *testing.T) {
	w := future.NewTestWaker()
	s, r := NewOneShot[int]()
	require.NoError(t, s.Send(1))
	p := r.Poll(w)
	require.True(t, p.IsReady())
	p = r.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, future.ErrInvalidPoll)
}

func TestPromise(t *testing.T) {
	w := future.NewTestWaker()
	p := NewPromise[int]()
	require.NoError(t, p.Sender.Send(5))
	poll := p.Future.Poll(w)
	require.True(t, poll.IsReady())
	v, _ := poll.Value()
	assert.Equal(t, 5, v)
}
