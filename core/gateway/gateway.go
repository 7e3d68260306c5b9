package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/relayhub/core/health"
	"github.com/dmitrymomot/relayhub/core/logger"
	"github.com/dmitrymomot/relayhub/core/relay"
)

// Hub is the part of relay.Hub the gateway needs.
type Hub interface {
	Serve(ctx context.Context, conn relay.Conn, transport string) error
	Stats() relay.HubStats
	Healthcheck(ctx context.Context) error
}

// Gateway is the HTTP side of the relay: WebSocket peers on /ws and
// operational endpoints on /live, /ready and /stats.
type Gateway struct {
	mu       sync.Mutex
	addr     string
	hub      Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	running  bool

	readiness         []func(context.Context) error
	shutdown          time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	maxMessageSize    int64
}

// New creates a Gateway serving hub on addr.
func New(addr string, hub Hub, opts ...Option) *Gateway {
	g := &Gateway{
		addr:   addr,
		hub:    hub,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  DefaultBufferSize,
			WriteBufferSize: DefaultBufferSize,
		},
		shutdown:          DefaultShutdownTimeout,
		readHeaderTimeout: DefaultReadHeaderTimeout,
		writeTimeout:      DefaultWriteTimeout,
		maxMessageSize:    DefaultMaxMessageSize,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Handler returns the gateway routes.
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(withRequestID, withAccessLog(g.logger))
	r.HandleFunc("/ws", g.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/live", health.Liveness).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/ready", health.Readiness(g.logger, g.readinessChecks()...)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/stats", g.stats).Methods(http.MethodGet)
	return r
}

// Start binds the address and serves until ctx is cancelled or the server fails.
// Returns ctx.Err() on cancellation; use Stop to shut the server down.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrGatewayAlreadyRunning
	}

	ln := g.listener
	if ln == nil {
		var err error
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", g.addr)
		if err != nil {
			g.mu.Unlock()
			return fmt.Errorf("%w: %s: %w", ErrBind, g.addr, err)
		}
		g.listener = ln
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: g.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := g.server
	g.running = true
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "gateway started",
		logger.Component("gateway"),
		logger.Addr(ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the HTTP server down gracefully. Upgraded WebSocket connections
// are not tracked by net/http; the hub closes them during its own shutdown.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running || g.server == nil {
		return nil
	}

	g.logger.Info("shutting down gateway", logger.Component("gateway"), slog.Duration("timeout", g.shutdown))

	ctx, cancel := context.WithTimeout(context.Background(), g.shutdown)
	defer cancel()

	err := g.server.Shutdown(ctx)
	g.running = false

	if err != nil {
		g.logger.Error("gateway shutdown error", logger.Component("gateway"), logger.Error(err))
		return err
	}

	g.logger.Info("gateway shutdown complete", logger.Component("gateway"))
	return nil
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (g *Gateway) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- g.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			if stopErr := g.Stop(); stopErr != nil {
				g.logger.Error("failed to stop gateway during context cancellation", logger.Error(stopErr))
			}
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Addr returns the bound address, or nil before Start has bound it.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.WarnContext(r.Context(), "websocket upgrade failed",
			logger.Component("gateway"),
			logger.Addr(r.RemoteAddr),
			logger.Error(err))
		return
	}

	conn := NewWSConn(ws, g.maxMessageSize, g.writeTimeout)
	if err := g.hub.Serve(r.Context(), conn, relay.TransportWebSocket); errors.Is(err, relay.ErrHubClosed) {
		g.logger.DebugContext(r.Context(), "websocket peer refused, hub closed", logger.Component("gateway"))
	}
}

// readinessChecks runs the hub check before external dependencies.
func (g *Gateway) readinessChecks() []health.Check {
	checks := make([]health.Check, 0, len(g.readiness)+1)
	checks = append(checks, g.hub.Healthcheck)
	for _, fn := range g.readiness {
		checks = append(checks, fn)
	}
	return checks
}

func (g *Gateway) stats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(g.hub.Stats())
}
