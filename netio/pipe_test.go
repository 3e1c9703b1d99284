package netio

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nonblockingPipe returns a connected read/write fd pair with both
// ends set non-blocking, as NewPipeChannel requires.
func nonblockingPipe(t *testing.T) (readFD, writeFD int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

func TestPipeChannelWriteThenReadRoundTrip(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	readFD, writeFD := nonblockingPipe(t)
	readSide := NewPipeChannel(r, readFD, -1)
	writeSide := NewPipeChannel(r, -1, writeFD)
	defer readSide.Close()
	defer writeSide.Close()

	const want = "piped"
	var received []byte
	done := make(chan struct{})

	var readUntil func(acc []byte) future.Future[struct{}]
	readUntil = func(acc []byte) future.Future[struct{}] {
		if len(acc) >= len(want) {
			received = acc
			close(done)
			return future.ImmediateOk(struct{}{})
		}
		return future.AndThen[[]byte, struct{}](readSide.Read(), func(buf []byte) future.Future[struct{}] {
			return readUntil(append(acc, buf...))
		})
	}

	reactor.Spawn(r, readUntil(nil))
	reactor.Spawn(r, writeSide.Write([]byte(want)))

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pipe round trip")
	}
	r.Stop()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}

	assert.Equal(t, want, string(received))
}

func TestPipeChannelWriteOnlyFailsRead(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	_, writeFD := nonblockingPipe(t)
	writeSide := NewPipeChannel(r, -1, writeFD)
	defer writeSide.Close()

	fut := writeSide.Read()
	p := fut.Poll(future.NewTestWaker())
	require.True(t, p.IsErr())
	err2, _ := p.Error()
	assert.ErrorIs(t, err2, ErrNotSupported)
}

func TestPipeChannelReadOnlyFailsWrite(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	readFD, _ := nonblockingPipe(t)
	readSide := NewPipeChannel(r, readFD, -1)
	defer readSide.Close()

	fut := readSide.Write([]byte("x"))
	p := fut.Poll(future.NewTestWaker())
	require.True(t, p.IsErr())
	err2, _ := p.Error()
	assert.ErrorIs(t, err2, ErrNotSupported)
}

func TestPipeChannelShutdownWriteFailsQueuedWrites(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	readFD, writeFD := nonblockingPipe(t)
	readSide := NewPipeChannel(r, readFD, -1)
	writeSide := NewPipeChannel(r, -1, writeFD)
	defer readSide.Close()

	fut := writeSide.Write([]byte("x"))
	writeSide.ShutdownWrite()

	p := fut.Poll(future.NewTestWaker())
	require.True(t, p.IsErr())
	err2, _ := p.Error()
	assert.ErrorIs(t, err2, ErrBrokenPipe)

	fut2 := writeSide.Write([]byte("y"))
	p2 := fut2.Poll(future.NewTestWaker())
	require.True(t, p2.IsErr())
	err3, _ := p2.Error()
	assert.ErrorIs(t, err3, ErrBrokenPipe)
}
