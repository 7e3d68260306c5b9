package relay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/relayhub/core/relay"
)

func startDistributor(t *testing.T, opts ...relay.DistributorOption) *relay.Distributor {
	t.Helper()

	dist := relay.NewDistributor(opts...)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dist.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return dist.Stats().Running }, time.Second, time.Millisecond)
	return dist
}

func newPeer(id relay.PeerID) relay.Peer {
	return relay.Peer{ID: id, Outbound: relay.NewMailbox(0, relay.DropNewest)}
}

func submitAll(t *testing.T, dist *relay.Distributor, events ...relay.Event) {
	t.Helper()

	before := dist.Stats().EventsProcessed
	for _, ev := range events {
		require.NoError(t, dist.Submit(context.Background(), ev))
	}
	want := before + int64(len(events))
	require.Eventually(t, func() bool {
		return dist.Stats().EventsProcessed >= want
	}, time.Second, time.Millisecond)
}

func drained(p relay.Peer) []string {
	var out []string
	for _, msg := range p.Outbound.Drain(nil) {
		out = append(out, string(msg))
	}
	return out
}

func TestDistributor_SourceExclusion(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	a, b, c := newPeer(0), newPeer(1), newPeer(2)

	submitAll(t, dist,
		relay.Joined{Peer: a},
		relay.Joined{Peer: b},
		relay.Joined{Peer: c},
		relay.Received{Source: a.ID, Payload: []byte("hello")},
	)

	assert.Empty(t, drained(a))
	assert.Equal(t, []string{"hello"}, drained(b))
	assert.Equal(t, []string{"hello"}, drained(c))

	stats := dist.Stats()
	assert.EqualValues(t, 3, stats.Peers)
	assert.EqualValues(t, 1, stats.MessagesReceived)
	assert.EqualValues(t, 2, stats.Deliveries)
}

func TestDistributor_JoinOrderCausality(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	a, late := newPeer(0), newPeer(1)

	submitAll(t, dist,
		relay.Joined{Peer: a},
		relay.Received{Source: a.ID, Payload: []byte("before")},
		relay.Joined{Peer: late},
		relay.Received{Source: a.ID, Payload: []byte("after")},
	)

	assert.Equal(t, []string{"after"}, drained(late))
	assert.Empty(t, drained(a))
}

func TestDistributor_TotalOrder(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	a, b := newPeer(0), newPeer(1)

	submitAll(t, dist,
		relay.Joined{Peer: a},
		relay.Received{Source: a.ID, Payload: []byte("1")},
		relay.Joined{Peer: b},
		relay.Received{Source: a.ID, Payload: []byte("2")},
		relay.Received{Source: b.ID, Payload: []byte("3")},
		relay.Received{Source: a.ID, Payload: []byte("4")},
		relay.Received{Source: b.ID, Payload: []byte("5")},
	)

	assert.Equal(t, []string{"3", "5"}, drained(a))
	assert.Equal(t, []string{"2", "4"}, drained(b))
}

func TestDistributor_ConcurrentProducersKeepPerSourceOrder(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	sink := newPeer(100)
	submitAll(t, dist, relay.Joined{Peer: sink})

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(src relay.PeerID) {
			defer wg.Done()
			for i := range perProducer {
				_ = dist.Submit(context.Background(), relay.Received{Source: src, Payload: []byte{byte(src), byte(i)}})
			}
		}(relay.PeerID(p))
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return dist.Stats().MessagesReceived == producers*perProducer
	}, 2*time.Second, time.Millisecond)

	next := make(map[byte]byte)
	msgs := sink.Outbound.Drain(nil)
	require.Len(t, msgs, producers*perProducer)
	for _, msg := range msgs {
		src, seq := msg[0], msg[1]
		assert.Equal(t, next[src], seq, "source %d delivered out of order", src)
		next[src] = seq + 1
	}
}

func TestDistributor_ClosedMailboxIsDroppedSilently(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	a, b, c := newPeer(0), newPeer(1), newPeer(2)

	submitAll(t, dist,
		relay.Joined{Peer: a},
		relay.Joined{Peer: b},
		relay.Joined{Peer: c},
	)

	b.Outbound.Close()

	submitAll(t, dist, relay.Received{Source: a.ID, Payload: []byte("ping")})
	assert.Equal(t, []string{"ping"}, drained(c))

	stats := dist.Stats()
	assert.EqualValues(t, 2, stats.Peers)
	assert.EqualValues(t, 1, stats.Pruned)
	assert.EqualValues(t, 1, stats.Dropped)

	// A second broadcast does not touch the pruned peer again.
	submitAll(t, dist, relay.Received{Source: c.ID, Payload: []byte("pong")})
	assert.Equal(t, []string{"pong"}, drained(a))
	assert.EqualValues(t, 1, dist.Stats().Pruned)
}

func TestDistributor_FullMailboxKeepsPeer(t *testing.T) {
	t.Parallel()

	dist := startDistributor(t)
	a := newPeer(0)
	slow := relay.Peer{ID: 1, Outbound: relay.NewMailbox(1, relay.DropNewest)}

	submitAll(t, dist,
		relay.Joined{Peer: a},
		relay.Joined{Peer: slow},
		relay.Received{Source: a.ID, Payload: []byte("1")},
		relay.Received{Source: a.ID, Payload: []byte("2")},
	)

	assert.Equal(t, []string{"1"}, drained(slow))
	stats := dist.Stats()
	assert.EqualValues(t, 2, stats.Peers)
	assert.EqualValues(t, 1, stats.Dropped)
	assert.Zero(t, stats.Pruned)
}

func TestDistributor_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("start twice fails", func(t *testing.T) {
		t.Parallel()

		dist := startDistributor(t)
		assert.ErrorIs(t, dist.Start(context.Background()), relay.ErrDistributorAlreadyStarted)
	})

	t.Run("close drains queued events", func(t *testing.T) {
		t.Parallel()

		dist := relay.NewDistributor(relay.WithInboxSize(8))
		a, b := newPeer(0), newPeer(1)

		ctx := context.Background()
		require.NoError(t, dist.Submit(ctx, relay.Joined{Peer: a}))
		require.NoError(t, dist.Submit(ctx, relay.Joined{Peer: b}))
		require.NoError(t, dist.Submit(ctx, relay.Received{Source: a.ID, Payload: []byte("queued")}))
		require.NoError(t, dist.Close())
		require.NoError(t, dist.Close())

		assert.ErrorIs(t, dist.Submit(ctx, relay.Joined{Peer: newPeer(2)}), relay.ErrDistributorStopped)

		require.NoError(t, dist.Start(ctx))
		assert.Equal(t, []string{"queued"}, drained(b))
		assert.False(t, dist.Stats().Running)
	})

	t.Run("submit respects context when inbox is full", func(t *testing.T) {
		t.Parallel()

		dist := relay.NewDistributor(relay.WithInboxSize(1))
		require.NoError(t, dist.Submit(context.Background(), relay.Joined{Peer: newPeer(0)}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, dist.Submit(ctx, relay.Joined{Peer: newPeer(1)}), context.DeadlineExceeded)
	})

	t.Run("close unblocks waiting submitters", func(t *testing.T) {
		t.Parallel()

		dist := relay.NewDistributor(relay.WithInboxSize(1))
		require.NoError(t, dist.Submit(context.Background(), relay.Joined{Peer: newPeer(0)}))

		errCh := make(chan error, 1)
		go func() {
			errCh <- dist.Submit(context.Background(), relay.Joined{Peer: newPeer(1)})
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, dist.Close())

		select {
		case err := <-errCh:
			// The blocked send may win the race against close; both outcomes are valid.
			if err != nil {
				assert.ErrorIs(t, err, relay.ErrDistributorStopped)
			}
		case <-time.After(time.Second):
			t.Fatal("submit stayed blocked after close")
		}
	})

	t.Run("run returns nil on context cancellation", func(t *testing.T) {
		t.Parallel()

		dist := relay.NewDistributor()
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() { errCh <- dist.Run(ctx)() }()

		require.Eventually(t, func() bool { return dist.Stats().Running }, time.Second, time.Millisecond)
		require.NoError(t, dist.Healthcheck(ctx))
		cancel()

		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("run did not return")
		}
		assert.ErrorIs(t, dist.Healthcheck(context.Background()), relay.ErrDistributorStopped)
	})

	t.Run("run reports unexpected stop", func(t *testing.T) {
		t.Parallel()

		dist := relay.NewDistributor()
		errCh := make(chan error, 1)
		go func() { errCh <- dist.Run(context.Background())() }()

		require.Eventually(t, func() bool { return dist.Stats().Running }, time.Second, time.Millisecond)
		require.NoError(t, dist.Close())

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, relay.ErrDistributorStopped)
		case <-time.After(time.Second):
			t.Fatal("run did not return")
		}
	})
}
