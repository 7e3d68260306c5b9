package relay

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/relayhub/core/logger"
)

// Transport names used in logs and stats.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportBridge    = "bridge"
)

// DefaultMailboxCapacity bounds each peer's outbound queue.
const DefaultMailboxCapacity = 1024

// Hub assigns peer ids and runs one Session per connection. Every transport
// draws ids from the same counter, starting at 0.
type Hub struct {
	dist   *Distributor
	logger *slog.Logger

	capacity   int
	policy     OverflowPolicy
	streamOpts []StreamOption

	nextID atomic.Uint64

	mu       sync.Mutex
	sessions map[PeerID]*Session
	closed   bool
	wg       sync.WaitGroup

	accepted atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMailboxCapacity bounds each peer's outbound queue. 0 means unbounded.
func WithMailboxCapacity(n int) HubOption {
	return func(h *Hub) {
		if n >= 0 {
			h.capacity = n
		}
	}
}

// WithOverflowPolicy selects what happens when a peer's mailbox is full.
func WithOverflowPolicy(p OverflowPolicy) HubOption {
	return func(h *Hub) { h.policy = p }
}

// WithStreamOptions configures how byte stream connections are framed.
func WithStreamOptions(opts ...StreamOption) HubOption {
	return func(h *Hub) { h.streamOpts = append(h.streamOpts, opts...) }
}

// WithHubLogger sets the logger. Nil is ignored.
func WithHubLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.logger = log
		}
	}
}

// NewHub creates a hub that registers peers with dist.
func NewHub(dist *Distributor, opts ...HubOption) *Hub {
	h := &Hub{
		dist:     dist,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		capacity: DefaultMailboxCapacity,
		policy:   DropNewest,
		sessions: make(map[PeerID]*Session),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Distributor returns the distributor the hub feeds.
func (h *Hub) Distributor() *Distributor { return h.dist }

// Register assigns the next peer id to a byte stream connection and returns
// the function that serves it. Ids follow the order of Register calls, so the
// listener calls it on its accept loop and runs serve on a new goroutine.
func (h *Hub) Register(c net.Conn) (serve func(ctx context.Context), err error) {
	s, err := h.register(NewStreamConn(c, h.streamOpts...))
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) { _ = h.serve(ctx, s, TransportTCP) }, nil
}

// Serve assigns the next peer id to conn, registers it and blocks until the
// session ends. Graceful ends (remote close, hub shutdown) return nil.
func (h *Hub) Serve(ctx context.Context, conn Conn, transport string) error {
	s, err := h.register(conn)
	if err != nil {
		return err
	}
	return h.serve(ctx, s, transport)
}

// register allocates the id and records the session. Every registered session
// must be passed to serve, which releases it.
func (h *Hub) register(conn Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		_ = conn.Close()
		return nil, ErrHubClosed
	}
	id := h.allocID()
	s := newSession(id, conn, NewMailbox(h.capacity, h.policy), h.dist, h.logger)
	h.sessions[id] = s
	h.wg.Add(1)
	h.accepted.Add(1)
	return s, nil
}

func (h *Hub) serve(ctx context.Context, s *Session, transport string) error {
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()
		h.wg.Done()
	}()

	start := time.Now()
	correlation := uuid.NewString()

	h.logger.InfoContext(ctx, "peer connected",
		logger.Component("hub"),
		logger.PeerID(uint64(s.id)),
		logger.Transport(transport),
		logger.RemoteAddr(s.conn.RemoteAddr()),
		logger.CorrelationID(correlation))

	err := s.run(ctx)

	s.logEnd(ctx,
		logger.Component("hub"),
		logger.Transport(transport),
		logger.CorrelationID(correlation),
		logger.Elapsed(start))

	if isGracefulEnd(err) {
		return nil
	}
	return err
}

// Join registers a peer that is not backed by a connection and returns it.
// The caller owns the returned mailbox: drain it, and Close it when done.
func (h *Hub) Join(ctx context.Context) (Peer, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return Peer{}, ErrHubClosed
	}
	id := h.allocID()
	h.mu.Unlock()

	p := Peer{ID: id, Outbound: NewMailbox(h.capacity, h.policy)}
	if err := h.dist.Submit(ctx, Joined{Peer: p}); err != nil {
		p.Outbound.Close()
		return Peer{}, err
	}
	return p, nil
}

// Submit forwards a payload on behalf of a peer obtained from Join.
func (h *Hub) Submit(ctx context.Context, source PeerID, payload []byte) error {
	return h.dist.Submit(ctx, Received{Source: source, Payload: payload})
}

// Sessions returns the number of live sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Accepted returns how many sessions were ever started.
func (h *Hub) Accepted() int64 { return h.accepted.Load() }

// HubStats is a point-in-time snapshot of the hub and its distributor.
type HubStats struct {
	Sessions    int              `json:"sessions"`
	Accepted    int64            `json:"accepted"`
	Distributor DistributorStats `json:"distributor"`
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Sessions:    h.Sessions(),
		Accepted:    h.Accepted(),
		Distributor: h.dist.Stats(),
	}
}

// Healthcheck fails once the hub is shut down or its distributor stopped.
func (h *Hub) Healthcheck(ctx context.Context) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrHubClosed
	}
	return h.dist.Healthcheck(ctx)
}

// Shutdown refuses new sessions, closes the live ones and waits for them to
// finish or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	live := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		_ = s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shut down", logger.Component("hub"), logger.Count("closed_sessions", len(live)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// allocID must be called with h.mu held, so ids are handed out in the same
// order sessions are registered.
func (h *Hub) allocID() PeerID {
	return PeerID(h.nextID.Add(1) - 1)
}
