package netio

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/joeycumines/asyncrt/future"
	"github.com/joeycumines/asyncrt/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedCert builds a throwaway self-signed certificate for
// localhost, good enough to drive a real crypto/tls handshake in
// tests without shipping a static PEM fixture.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestTLSSocketChannelHandshakeAndRoundTrip(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	cert := selfSignedCert(t)
	clientConn, serverConn := net.Pipe()

	server := NewTLSServer(r, serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
	client := NewTLSClient(r, clientConn, &tls.Config{InsecureSkipVerify: true})

	shs := reactor.Spawn(r, server.Handshake())
	chs := reactor.Spawn(r, client.Handshake())

	const want = "hello over tls"
	var received []byte
	done := make(chan struct{})

	var readUntil func(acc []byte) future.Future[struct{}]
	readUntil = func(acc []byte) future.Future[struct{}] {
		if len(acc) >= len(want) {
			received = acc
			close(done)
			return future.ImmediateOk(struct{}{})
		}
		return future.AndThen[[]byte, struct{}](server.Read(), func(buf []byte) future.Future[struct{}] {
			return readUntil(append(acc, buf...))
		})
	}

	reactor.Spawn(r, future.AndThen[struct{}, struct{}](server.Handshake(), func(struct{}) future.Future[struct{}] {
		return readUntil(nil)
	}))

	reactor.Spawn(r, future.AndThen[struct{}, struct{}](client.Handshake(), func(struct{}) future.Future[struct{}] {
		return future.AndThen[struct{}, struct{}](client.Write([]byte(want)), func(struct{}) future.Future[struct{}] {
			return client.Flush()
		})
	}))

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for TLS round trip")
	}
	server.Close()
	client.Close()
	r.Stop()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reactor did not stop")
	}

	p := shs.Poll(future.NewTestWaker())
	require.True(t, p.IsReady())
	p2 := chs.Poll(future.NewTestWaker())
	require.True(t, p2.IsReady())
	assert.Equal(t, want, string(received))
}

func TestTLSSocketChannelReadBeforeHandshakeIsNotSupported(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client := NewTLSClient(r, clientConn, &tls.Config{InsecureSkipVerify: true})
	fut := client.Read()
	p := fut.Poll(future.NewTestWaker())
	require.True(t, p.IsErr())
	err2, _ := p.Error()
	assert.ErrorIs(t, err2, ErrNotSupported)

	client.Close()
}
