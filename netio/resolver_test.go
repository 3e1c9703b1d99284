package netio

import (
	"testing"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverResolvesLocalhost(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	res := NewResolver(r, 100)
	fut := reactor.Spawn(r, res.Resolve("localhost"))

	require.NoError(t, r.Run())

	p := fut.Poll(future.NewTestWaker())
	require.True(t, p.IsReady())
	ips, _ := p.Value()
	assert.NotEmpty(t, ips)
}

func TestResolverRateLimitRejectsExcessLookups(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	res := NewResolver(r, 1)

	fut1 := reactor.Spawn(r, res.Resolve("localhost"))
	fut2 := reactor.Spawn(r, res.Resolve("localhost"))

	require.NoError(t, r.Run())

	p1 := fut1.Poll(future.NewTestWaker())
	p2 := fut2.Poll(future.NewTestWaker())
	require.False(t, p1.IsNotReady())
	require.False(t, p2.IsNotReady())

	// exactly one of the two lookups is rejected by the per-second cap.
	rejected := 0
	err1, failed1 := p1.Error()
	err2, failed2 := p2.Error()
	if failed1 {
		rejected++
		assert.ErrorIs(t, err1, ErrRateLimited)
	}
	if failed2 {
		rejected++
		assert.ErrorIs(t, err2, ErrRateLimited)
	}
	assert.Equal(t, 1, rejected)
}

// TestResolveTokenCancel drives the token state machine directly, rather
// than racing the background lookup goroutine spawned by Resolve.
func TestResolveTokenCancel(t *testing.T) {
	tok := &resolveToken{cancel: func() {}}
	f := &resolveFuture{tok: tok}
	tok.Cancel()

	p := f.Poll(future.NewTestWaker())
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.Contains(t, err.Error(), "cancel")
}

func TestResolveTokenCancelAfterDoneIsNoop(t *testing.T) {
	tok := &resolveToken{}
	tok.state = reactor.TokenDone
	tok.ips = nil
	tok.Cancel()
	assert.Equal(t, reactor.TokenDone, tok.state)
}
