package relay_test

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/relayhub/core/frame"
	"github.com/dmitrymomot/relayhub/core/relay"
)

type testHub struct {
	dist *relay.Distributor
	hub  *relay.Hub
	addr string
}

func startHub(t *testing.T, opts ...relay.HubOption) *testHub {
	t.Helper()

	dist := startDistributor(t)
	hub := relay.NewHub(dist, opts...)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			serve, err := hub.Register(c)
			if err != nil {
				continue
			}
			go serve(ctx)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		assert.NoError(t, hub.Shutdown(shutdownCtx))
		cancel()
	})

	return &testHub{dist: dist, hub: hub, addr: ln.Addr().String()}
}

// join dials the hub and waits until the distributor has registered the new peer.
func (th *testHub) join(t *testing.T) *testPeer {
	t.Helper()

	before := th.hub.Accepted()
	conn, err := net.Dial("tcp", th.addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return th.hub.Accepted() == before+1 }, 2*time.Second, time.Millisecond)

	return &testPeer{conn: conn, r: frame.NewReader(conn), w: frame.NewWriter(conn)}
}

func (th *testHub) waitPeers(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool { return th.dist.Stats().Peers == n }, 2*time.Second, time.Millisecond)
}

type testPeer struct {
	conn net.Conn
	r    *frame.Reader
	w    *frame.Writer
}

func (p *testPeer) send(t *testing.T, msg string) {
	t.Helper()
	require.NoError(t, p.w.WriteFrame([]byte(msg)))
}

func (p *testPeer) expect(t *testing.T, want string) {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	got, err := p.r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func (p *testPeer) expectNothing(t *testing.T) {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	got, err := p.r.ReadFrame()
	require.Error(t, err, "unexpected message %q", got)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func TestHub_BroadcastScenario(t *testing.T) {
	t.Parallel()

	th := startHub(t)

	a := th.join(t)
	th.waitPeers(t, 1)
	b := th.join(t)
	th.waitPeers(t, 2)
	c := th.join(t)
	th.waitPeers(t, 3)

	a.send(t, "hello")
	b.expect(t, "hello")
	c.expect(t, "hello")
	a.expectNothing(t)

	require.NoError(t, b.conn.Close())
	require.Eventually(t, func() bool { return th.hub.Sessions() == 2 }, 2*time.Second, time.Millisecond)

	a.send(t, "ping")
	c.expect(t, "ping")
	a.expectNothing(t)

	// B's stale entry is pruned on the broadcast that found it gone.
	th.waitPeers(t, 2)
}

func TestHub_AssignsIncreasingIDs(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	hub := relay.NewHub(dist)

	for want := range relay.PeerID(5) {
		p, err := hub.Join(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, p.ID)
	}

	// ids are never reused, even after a peer leaves
	p, err := hub.Join(context.Background())
	require.NoError(t, err)
	p.Outbound.Close()

	next, err := hub.Join(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.ID+1, next.ID)
}

func TestHub_JoinedPeerReceivesBroadcasts(t *testing.T) {
	t.Parallel()

	th := startHub(t)
	virtual, err := th.hub.Join(context.Background())
	require.NoError(t, err)

	tcp := th.join(t)
	th.waitPeers(t, 2)

	tcp.send(t, "from tcp")
	require.Eventually(t, func() bool { return virtual.Outbound.Len() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, "from tcp", string(virtual.Outbound.Drain(nil)[0]))

	require.NoError(t, th.hub.Submit(context.Background(), virtual.ID, []byte("from virtual")))
	tcp.expect(t, "from virtual")
	assert.Zero(t, virtual.Outbound.Len())
}

func TestHub_TruncatedFrameEndsOnlyThatPeer(t *testing.T) {
	t.Parallel()

	th := startHub(t)

	a := th.join(t)
	b := th.join(t)
	bad := th.join(t)
	th.waitPeers(t, 3)

	// Announce 100 bytes, deliver 3, then hang up.
	hdr := binary.BigEndian.AppendUint32(nil, 100)
	_, err := bad.conn.Write(append(hdr, "abc"...))
	require.NoError(t, err)
	require.NoError(t, bad.conn.(*net.TCPConn).CloseWrite())

	require.Eventually(t, func() bool { return th.hub.Sessions() == 2 }, 2*time.Second, time.Millisecond)

	a.send(t, "still here")
	b.expect(t, "still here")
	b.send(t, "me too")
	a.expect(t, "me too")
}

func TestHub_ServeReportsFramingError(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	hub := relay.NewHub(dist)

	server, client := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.Serve(context.Background(), relay.NewStreamConn(server), relay.TransportTCP)
	}()

	hdr := binary.BigEndian.AppendUint32(nil, 64)
	_, err := client.Write(append(hdr, 1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, frame.ErrTruncatedFrame)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestHub_OversizeFrameIsRejected(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	hub := relay.NewHub(dist)

	server, client := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.Serve(context.Background(), relay.NewStreamConn(server, relay.WithFrameOptions(frame.WithMaxFrameSize(16))), relay.TransportTCP)
	}()

	_, err := client.Write(binary.BigEndian.AppendUint32(nil, 1<<30))
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, frame.ErrFrameTooLarge)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	_ = client.Close()
}

func TestHub_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	hub := relay.NewHub(dist)

	server, client := net.Pipe()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.Serve(context.Background(), relay.NewStreamConn(server), relay.TransportTCP)
	}()
	require.Eventually(t, func() bool { return dist.Stats().Peers == 1 }, time.Second, time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Shutdown(ctx))
	require.NoError(t, hub.Shutdown(ctx))
	assert.NoError(t, <-errCh)
	assert.Zero(t, hub.Sessions())

	// The closed session costs one pruned entry on the next broadcast, nothing more.
	other := newPeer(99)
	require.NoError(t, dist.Submit(ctx, relay.Joined{Peer: other}))
	require.NoError(t, dist.Submit(ctx, relay.Received{Source: other.ID, Payload: []byte("x")}))
	require.NoError(t, dist.Submit(ctx, relay.Received{Source: other.ID, Payload: []byte("y")}))
	require.Eventually(t, func() bool { return dist.Stats().MessagesReceived == 2 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, dist.Stats().Pruned)

	// New connections are refused after shutdown.
	s2, c2 := net.Pipe()
	defer c2.Close()
	assert.ErrorIs(t, hub.Serve(ctx, relay.NewStreamConn(s2), relay.TransportTCP), relay.ErrHubClosed)
}

func TestHub_RegisterAllocatesBeforeServing(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	hub := relay.NewHub(dist)

	var serves []func(context.Context)
	for range 3 {
		server, client := net.Pipe()
		t.Cleanup(func() { _ = client.Close() })

		serve, err := hub.Register(server)
		require.NoError(t, err)
		serves = append(serves, serve)
	}
	assert.EqualValues(t, 3, hub.Accepted())
	assert.Equal(t, 3, hub.Sessions())

	// The id belongs to the registration, not to the order sessions start in.
	next, err := hub.Join(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relay.PeerID(3), next.ID)

	for i := len(serves) - 1; i >= 0; i-- {
		go serves[i](context.Background())
	}
	require.Eventually(t, func() bool { return dist.Stats().Peers == 4 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	server, client := net.Pipe()
	defer client.Close()
	serve, err := hub.Register(server)
	assert.ErrorIs(t, err, relay.ErrHubClosed)
	assert.Nil(t, serve)

	// A refused conn is closed.
	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestHub_DisconnectPolicyDropsSlowPeer(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	hub := relay.NewHub(dist, relay.WithMailboxCapacity(1), relay.WithOverflowPolicy(relay.Disconnect))

	slow := newBlockingConn()
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(context.Background(), slow, relay.TransportTCP) }()
	require.Eventually(t, func() bool { return dist.Stats().Peers == 1 }, time.Second, time.Millisecond)

	sender := newPeer(1000)
	ctx := context.Background()
	require.NoError(t, dist.Submit(ctx, relay.Joined{Peer: sender}))
	for i := range 5 {
		require.NoError(t, dist.Submit(ctx, relay.Received{Source: sender.ID, Payload: []byte{byte(i)}}))
	}

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, relay.ErrMailboxOverflow)
	case <-time.After(2 * time.Second):
		t.Fatal("slow peer was not disconnected")
	}
}

// blockingConn never yields inbound data and stalls every write until closed,
// like a peer whose TCP window stays shut.
type blockingConn struct {
	closed chan struct{}
	once   sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{closed: make(chan struct{})}
}

func (c *blockingConn) ReadMessage() ([]byte, error) {
	<-c.closed
	return nil, net.ErrClosed
}

func (c *blockingConn) WriteMessage([]byte) error {
	<-c.closed
	return net.ErrClosed
}

func (c *blockingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *blockingConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
