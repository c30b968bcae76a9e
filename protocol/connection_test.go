package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func newConnectedPair(t *testing.T) (client, server *Connection) {
	t.Helper()
	a, b := net.Pipe()

	var serverDisconnected, clientDisconnected bool
	server = NewConnection(b, echoHandler{}, func() { serverDisconnected = true })
	client = NewConnection(a, echoHandler{}, func() { clientDisconnected = true })
	server.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Authenticate(ctx, &ClientAuth{UserID: []byte("u1")}))

	t.Cleanup(func() {
		client.Close()
		server.Close()
		_ = serverDisconnected
		_ = clientDisconnected
	})
	return client, server
}

func TestCallRoundTrip(t *testing.T) {
	client, _ := newConnectedPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Call(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resp)
}

func TestCallNotReadyBeforeAuth(t *testing.T) {
	a, b := net.Pipe()
	server := NewConnection(b, echoHandler{}, nil)
	client := NewConnection(a, echoHandler{}, nil)
	server.Start()
	client.Start()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCallStreamDeliversUntilFinal(t *testing.T) {
	client, _ := newConnectedPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, streamCancel, err := client.CallStream(ctx, []byte("stream-me"))
	require.NoError(t, err)
	defer streamCancel()

	select {
	case got := <-ch:
		assert.Equal(t, []byte("stream-me"), got)
	case <-time.After(time.Second):
		t.Fatal("expected a streamed response")
	}

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after the sentinel final response")
	case <-time.After(time.Second):
		t.Fatal("expected stream channel to close")
	}
}

func TestOnDisconnectFiresOnClose(t *testing.T) {
	a, b := net.Pipe()
	disconnected := make(chan struct{})
	server := NewConnection(b, echoHandler{}, func() { close(disconnected) })
	client := NewConnection(a, echoHandler{}, nil)
	server.Start()
	client.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Authenticate(ctx, &ClientAuth{UserID: []byte("u1")}))

	client.Close()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("expected server onDisconnect to fire after peer closed")
	}
	server.Close()
}
