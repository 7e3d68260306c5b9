package relayclient_test

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/relayhub/core/frame"
	"github.com/dmitrymomot/relayhub/core/gateway"
	"github.com/dmitrymomot/relayhub/core/relay"
	"github.com/dmitrymomot/relayhub/core/server"
	"github.com/dmitrymomot/relayhub/pkg/relayclient"
)

type hubFixture struct {
	dist  *relay.Distributor
	hub   *relay.Hub
	tcp   string
	wsURL string
}

// startHub runs a distributor, a TCP listener and a gateway the way the
// relayhub binary wires them.
func startHub(t *testing.T) *hubFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	dist := relay.NewDistributor()
	go func() { _ = dist.Start(ctx) }()

	hub := relay.NewHub(dist)
	srv := server.New("127.0.0.1:0", server.WithShutdownTimeout(2*time.Second))
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, hub)() }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	gw := httptest.NewServer(gateway.New("unused", hub).Handler())

	t.Cleanup(func() {
		cancel()
		<-done
		gw.Close()
		_ = dist.Close()
	})

	return &hubFixture{
		dist:  dist,
		hub:   hub,
		tcp:   srv.Addr().String(),
		wsURL: "ws" + strings.TrimPrefix(gw.URL, "http") + "/ws",
	}
}

func (f *hubFixture) dial(t *testing.T) *relayclient.Client {
	t.Helper()

	before := f.dist.Stats().Peers
	c, err := relayclient.Dial(context.Background(), f.tcp, relayclient.WithWriteTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return f.dist.Stats().Peers == before+1 }, 2*time.Second, time.Millisecond)
	return c
}

func (f *hubFixture) dialWS(t *testing.T) *relayclient.Client {
	t.Helper()

	before := f.dist.Stats().Peers
	c, err := relayclient.DialWebSocket(context.Background(), f.wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return f.dist.Stats().Peers == before+1 }, 2*time.Second, time.Millisecond)
	return c
}

func receive(t *testing.T, c *relayclient.Client) []byte {
	t.Helper()

	type result struct {
		msg []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := c.Receive()
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestClient_SendReceive(t *testing.T) {
	t.Parallel()

	f := startHub(t)
	a, b, c := f.dial(t), f.dial(t), f.dialWS(t)

	require.NoError(t, a.Send([]byte("hello")))
	assert.Equal(t, []byte("hello"), receive(t, b))
	assert.Equal(t, []byte("hello"), receive(t, c))

	require.NoError(t, c.Send([]byte("from websocket")))
	assert.Equal(t, []byte("from websocket"), receive(t, a))
	assert.Equal(t, []byte("from websocket"), receive(t, b))
}

func TestClient_Messages(t *testing.T) {
	t.Parallel()

	f := startHub(t)
	sender, listener := f.dial(t), f.dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	msgs, reason := listener.Messages(ctx)

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, sender.Send([]byte(m)))
	}

	var got []string
	for range 3 {
		select {
		case m := <-msgs:
			got = append(got, string(m))
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered")
		}
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)

	cancel()
	for range msgs {
	}
	assert.ErrorIs(t, reason(), context.Canceled)
	assert.ErrorIs(t, listener.Send([]byte("late")), relayclient.ErrClosed)
}

func TestClient_ReceiveEOFOnHubShutdown(t *testing.T) {
	t.Parallel()

	f := startHub(t)
	c := f.dial(t)

	require.NoError(t, f.hub.Shutdown(context.Background()))

	_, err := c.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	f := startHub(t)
	c := f.dial(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send([]byte("x")), relayclient.ErrClosed)
	_, err := c.Receive()
	assert.ErrorIs(t, err, relayclient.ErrClosed)
}

func TestClient_DialFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = relayclient.Dial(context.Background(), addr, relayclient.WithDialTimeout(time.Second))
	assert.ErrorIs(t, err, relayclient.ErrDial)

	_, err = relayclient.DialWebSocket(context.Background(), "ws://"+addr+"/ws", relayclient.WithDialTimeout(time.Second))
	assert.ErrorIs(t, err, relayclient.ErrDial)
}

func TestClient_OversizeSendRejected(t *testing.T) {
	t.Parallel()

	f := startHub(t)
	c, err := relayclient.Dial(context.Background(), f.tcp, relayclient.WithMaxFrameSize(8))
	require.NoError(t, err)
	defer c.Close()

	err = c.Send(make([]byte, 9))
	assert.ErrorIs(t, err, frame.ErrFrameTooLarge)
}
