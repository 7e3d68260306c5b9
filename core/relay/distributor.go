package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/relayhub/core/logger"
)

// DefaultInboxSize is the default capacity of the distributor's event channel.
const DefaultInboxSize = 4096

// Distributor is the single owner of the peer list. Every join and every
// broadcast decision goes through one channel and is applied by one goroutine,
// so all events are observed in one total order.
type Distributor struct {
	inbox  chan Event
	logger *slog.Logger

	// mu guards closing the inbox against concurrent Submit calls.
	mu        sync.RWMutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
	started   atomic.Bool

	// peers is touched only by the loop goroutine.
	peers []Peer

	running          atomic.Bool
	peerCount        atomic.Int64
	eventsProcessed  atomic.Int64
	messagesReceived atomic.Int64
	deliveries       atomic.Int64
	dropped          atomic.Int64
	pruned           atomic.Int64
}

// DistributorStats is a point-in-time snapshot for health and stats endpoints.
type DistributorStats struct {
	Peers            int64 `json:"peers"`
	EventsProcessed  int64 `json:"events_processed"`
	MessagesReceived int64 `json:"messages_received"`
	Deliveries       int64 `json:"deliveries"`
	Dropped          int64 `json:"dropped"`
	Pruned           int64 `json:"pruned"`
	Running          bool  `json:"running"`
}

// DistributorOption configures a Distributor.
type DistributorOption func(*Distributor)

// WithInboxSize sets the event channel capacity. Submitters block while it is full.
func WithInboxSize(size int) DistributorOption {
	return func(d *Distributor) {
		if size > 0 {
			d.inbox = make(chan Event, size)
		}
	}
}

// WithDistributorLogger sets the logger. Nil is ignored.
func WithDistributorLogger(log *slog.Logger) DistributorOption {
	return func(d *Distributor) {
		if log != nil {
			d.logger = log
		}
	}
}

// NewDistributor creates a stopped distributor. Call Start or Run to begin processing.
func NewDistributor(opts ...DistributorOption) *Distributor {
	d := &Distributor{
		inbox:   make(chan Event, DefaultInboxSize),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Submit enqueues ev. It blocks while the inbox is full and fails with
// ErrDistributorStopped once the distributor is closed or its loop has exited.
func (d *Distributor) Submit(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDistributorStopped
	}

	select {
	case d.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closing:
		return ErrDistributorStopped
	case <-d.stopped:
		return ErrDistributorStopped
	}
}

// Start runs the event loop until the inbox is closed (returns nil) or ctx is
// cancelled (returns ctx.Err()). A distributor can be started once.
func (d *Distributor) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrDistributorAlreadyStarted
	}

	d.running.Store(true)
	defer func() {
		d.running.Store(false)
		close(d.stopped)
	}()

	d.logger.InfoContext(ctx, "distributor started", logger.Component("distributor"))

	for {
		select {
		case <-ctx.Done():
			d.logger.WarnContext(ctx, "distributor stopped by context",
				logger.Component("distributor"),
				logger.Error(ctx.Err()))
			return ctx.Err()
		case ev, ok := <-d.inbox:
			if !ok {
				d.logger.InfoContext(ctx, "distributor stopped, event stream closed",
					logger.Component("distributor"),
					logger.Count("events_processed", int(d.eventsProcessed.Load())))
				return nil
			}
			d.apply(ev)
		}
	}
}

// Close stops accepting events. Events already queued are still applied before
// Start returns. Safe to call more than once.
func (d *Distributor) Close() error {
	d.closeOnce.Do(func() {
		close(d.closing)

		d.mu.Lock()
		d.closed = true
		close(d.inbox)
		d.mu.Unlock()
	})
	return nil
}

// Run adapts the distributor to errgroup. On ctx cancellation it closes the
// inbox and waits for the queued events to drain. If the loop exits while ctx
// is still live, Run returns ErrDistributorStopped: without a distributor
// nothing can be broadcast.
func (d *Distributor) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- d.Start(context.WithoutCancel(ctx))
		}()

		select {
		case <-ctx.Done():
			_ = d.Close()
			return <-errCh
		case err := <-errCh:
			if err == nil {
				err = ErrDistributorStopped
			}
			d.logger.Error("distributor exited unexpectedly",
				logger.Component("distributor"),
				logger.Error(err))
			return err
		}
	}
}

// Stats returns a snapshot of the distributor counters.
func (d *Distributor) Stats() DistributorStats {
	return DistributorStats{
		Peers:            d.peerCount.Load(),
		EventsProcessed:  d.eventsProcessed.Load(),
		MessagesReceived: d.messagesReceived.Load(),
		Deliveries:       d.deliveries.Load(),
		Dropped:          d.dropped.Load(),
		Pruned:           d.pruned.Load(),
		Running:          d.running.Load(),
	}
}

// Healthcheck reports whether the event loop is running.
func (d *Distributor) Healthcheck(context.Context) error {
	if !d.running.Load() {
		return ErrDistributorStopped
	}
	return nil
}

func (d *Distributor) apply(ev Event) {
	switch ev := ev.(type) {
	case Joined:
		d.peers = append(d.peers, ev.Peer)
		d.peerCount.Store(int64(len(d.peers)))
		d.logger.Debug("peer joined",
			logger.Component("distributor"),
			logger.PeerID(uint64(ev.Peer.ID)),
			logger.Count("peers", len(d.peers)))
	case Received:
		d.messagesReceived.Add(1)
		d.broadcast(ev.Source, ev.Payload)
	}
	d.eventsProcessed.Add(1)
}

// broadcast delivers payload to every peer but source. Peers whose mailbox is
// closed are dropped from the list; the remaining order is preserved.
func (d *Distributor) broadcast(source PeerID, payload []byte) {
	kept := d.peers[:0]
	for _, p := range d.peers {
		if p.ID == source {
			kept = append(kept, p)
			continue
		}

		evicted, err := p.Outbound.Push(payload)
		switch {
		case err == nil:
			d.deliveries.Add(1)
			d.dropped.Add(int64(evicted))
		case errors.Is(err, ErrMailboxFull):
			d.dropped.Add(1)
		default:
			// Closed or disconnected for overflow: the owning session is gone or going.
			d.dropped.Add(1)
			d.pruned.Add(1)
			d.logger.Debug("pruned unreachable peer",
				logger.Component("distributor"),
				logger.PeerID(uint64(p.ID)),
				logger.Reason(err.Error()))
			continue
		}
		kept = append(kept, p)
	}

	clear(d.peers[len(kept):])
	d.peers = kept
	d.peerCount.Store(int64(len(d.peers)))
}
