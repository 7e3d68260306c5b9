package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/relayhub/core/logger"
	"github.com/dmitrymomot/relayhub/core/relay"
)

// EnvelopeHeaderSize is the length of the instance id that prefixes every
// published message.
const EnvelopeHeaderSize = 16

// DefaultChannel is the pub/sub channel hubs share when none is configured.
const DefaultChannel = "relayhub"

// Hub is the part of relay.Hub the bridge needs.
type Hub interface {
	Join(ctx context.Context) (relay.Peer, error)
	Submit(ctx context.Context, source relay.PeerID, payload []byte) error
}

// Bridge joins a hub as one peer and mirrors its traffic through a Broker,
// so that hubs sharing a channel behave as one bus. Messages published by
// this bridge come back from the broker and are dropped by instance id.
type Bridge struct {
	hub     Hub
	broker  Broker
	channel string
	id      uuid.UUID
	logger  *slog.Logger

	started atomic.Bool
	running atomic.Bool

	published     atomic.Int64
	received      atomic.Int64
	echoes        atomic.Int64
	malformed     atomic.Int64
	publishErrors atomic.Int64
}

// Stats is a point-in-time snapshot of bridge counters.
type Stats struct {
	InstanceID    string `json:"instance_id"`
	Channel       string `json:"channel"`
	Published     int64  `json:"published"`
	Received      int64  `json:"received"`
	Echoes        int64  `json:"echoes"`
	Malformed     int64  `json:"malformed"`
	PublishErrors int64  `json:"publish_errors"`
	Running       bool   `json:"running"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(b *Bridge) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithInstanceID overrides the random instance id.
func WithInstanceID(id uuid.UUID) Option {
	return func(b *Bridge) {
		b.id = id
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.logger = log
		}
	}
}

// New creates a bridge between hub and broker.
func New(hub Hub, broker Broker, opts ...Option) *Bridge {
	b := &Bridge{
		hub:     hub,
		broker:  broker,
		channel: DefaultChannel,
		id:      uuid.New(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// InstanceID returns the id this bridge stamps on published messages.
func (b *Bridge) InstanceID() uuid.UUID { return b.id }

// Start joins the hub, subscribes to the channel and relays in both
// directions until ctx is cancelled. Returns nil on cancellation.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrBridgeAlreadyRunning
	}
	defer b.started.Store(false)

	msgs, unsubscribe, err := b.broker.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer func() { _ = unsubscribe() }()

	peer, err := b.hub.Join(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJoin, err)
	}
	defer peer.Outbound.Close()

	b.running.Store(true)
	defer b.running.Store(false)

	b.logger.InfoContext(ctx, "bridge started",
		logger.Component("bridge"),
		logger.PeerID(uint64(peer.ID)),
		slog.String("channel", b.channel),
		slog.String("instance_id", b.id.String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.publishLoop(gctx, peer) })
	g.Go(func() error { return b.subscribeLoop(gctx, peer.ID, msgs) })

	err = g.Wait()
	if ctx.Err() != nil {
		b.logger.InfoContext(ctx, "bridge stopped", logger.Component("bridge"))
		return nil
	}

	b.logger.ErrorContext(ctx, "bridge failed", logger.Component("bridge"), logger.Error(err))
	return err
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (b *Bridge) Run(ctx context.Context) func() error {
	return func() error {
		return b.Start(ctx)
	}
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		InstanceID:    b.id.String(),
		Channel:       b.channel,
		Published:     b.published.Load(),
		Received:      b.received.Load(),
		Echoes:        b.echoes.Load(),
		Malformed:     b.malformed.Load(),
		PublishErrors: b.publishErrors.Load(),
		Running:       b.running.Load(),
	}
}

// Healthcheck fails while the bridge is not relaying.
func (b *Bridge) Healthcheck(context.Context) error {
	if !b.running.Load() {
		return ErrSubscriptionClosed
	}
	return nil
}

// publishLoop forwards everything the hub delivers to the bridge peer.
// A failed publish loses that message; the bridge keeps running.
func (b *Bridge) publishLoop(ctx context.Context, peer relay.Peer) error {
	var batch [][]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-peer.Outbound.Done():
			return peer.Outbound.Err()
		case <-peer.Outbound.Ready():
			batch = peer.Outbound.Drain(batch[:0])
			for i, msg := range batch {
				batch[i] = nil
				if err := b.broker.Publish(ctx, b.channel, b.seal(msg)); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					b.publishErrors.Add(1)
					b.logger.WarnContext(ctx, "bridge publish failed",
						logger.Component("bridge"),
						logger.BytesOut(int64(len(msg))),
						logger.Error(err))
					continue
				}
				b.published.Add(1)
			}
		}
	}
}

// subscribeLoop injects messages from other hubs as if the bridge peer sent them.
func (b *Bridge) subscribeLoop(ctx context.Context, self relay.PeerID, msgs <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-msgs:
			if !ok {
				return ErrSubscriptionClosed
			}

			origin, payload, err := unseal(env)
			if err != nil {
				b.malformed.Add(1)
				b.logger.WarnContext(ctx, "bridge dropped malformed message",
					logger.Component("bridge"),
					logger.BytesIn(int64(len(env))),
					logger.Error(err))
				continue
			}
			if origin == b.id {
				b.echoes.Add(1)
				continue
			}

			if err := b.hub.Submit(ctx, self, payload); err != nil {
				return fmt.Errorf("%w: %w", ErrInject, err)
			}
			b.received.Add(1)
		}
	}
}

// seal prefixes msg with the instance id.
func (b *Bridge) seal(msg []byte) []byte {
	env := make([]byte, EnvelopeHeaderSize+len(msg))
	copy(env, b.id[:])
	copy(env[EnvelopeHeaderSize:], msg)
	return env
}

// unseal splits an envelope into its origin id and payload.
func unseal(env []byte) (uuid.UUID, []byte, error) {
	if len(env) < EnvelopeHeaderSize {
		return uuid.Nil, nil, ErrMalformedEnvelope
	}
	return uuid.UUID(env[:EnvelopeHeaderSize]), env[EnvelopeHeaderSize:], nil
}
