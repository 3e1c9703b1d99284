package netio

import (
	"net"
	"testing"
	"time"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeTCPAddr finds an ephemeral port likely to still be free by the
// time the caller binds to it.
func freeTCPAddr(t *testing.T) *net.TCPAddr {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())
	return addr
}

func TestSocketChannelRoundTrip(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	addr := freeTCPAddr(t)
	ss, err := Listen(r, addr, 16)
	require.NoError(t, err)

	var serverPeer net.Addr
	var received []byte
	done := make(chan struct{})

	const want = "hello"
	var readUntil func(ch *SocketChannel, acc []byte, target int) future.Future[struct{}]
	readUntil = func(ch *SocketChannel, acc []byte, target int) future.Future[struct{}] {
		if len(acc) >= target {
			received = acc
			close(done)
			ss.Close()
			ch.Close()
			return future.ImmediateOk(struct{}{})
		}
		return future.AndThen[[]byte, struct{}](ch.Read(), func(buf []byte) future.Future[struct{}] {
			return readUntil(ch, append(acc, buf...), target)
		})
	}

	reactor.Spawn(r, future.AndThen[*AcceptPair, struct{}](ss.Accept(), func(pair *AcceptPair) future.Future[struct{}] {
		serverPeer = pair.Peer
		return future.AndThen[[]byte, struct{}](pair.Channel.Read(), func(buf []byte) future.Future[struct{}] {
			return readUntil(pair.Channel, append([]byte(nil), buf...), len(want))
		})
	}))

	clientCh, connectFut, err := Dial(r, "tcp", addr)
	require.NoError(t, err)
	reactor.Spawn(r, future.AndThen[struct{}, struct{}](connectFut, func(struct{}) future.Future[struct{}] {
		return future.AndThen[struct{}, struct{}](clientCh.Write([]byte("hello")), func(struct{}) future.Future[struct{}] {
			clientCh.Close()
			return future.ImmediateOk(struct{}{})
		})
	}))

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for round trip")
	}
	r.Stop()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}

	assert.Equal(t, "hello", string(received))
	assert.NotNil(t, serverPeer)
}
