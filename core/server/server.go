package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dmitrymomot/relayhub/core/logger"
)

// ConnectionHandler takes over accepted connections. Register is called on the
// accept loop, one connection at a time in accept order; the returned serve
// func then runs on its own goroutine and owns conn until it returns. A
// handler that refuses conn returns an error and the server closes conn.
type ConnectionHandler interface {
	Register(conn net.Conn) (serve func(ctx context.Context), err error)
}

// Shutdowner is implemented by handlers that track live connections.
// Stop calls it after the listener is closed.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Admission decides whether a newly accepted connection from key (the remote
// host) may proceed.
type Admission interface {
	Allow(key string) bool
}

// Server accepts TCP connections and hands each one to a ConnectionHandler
// in its own goroutine. Safe for concurrent use.
type Server struct {
	mu        sync.RWMutex
	addr      string
	listener  net.Listener
	handler   ConnectionHandler
	logger    *slog.Logger
	shutdown  time.Duration
	keepAlive time.Duration
	noDelay   bool
	admission Admission
	running   bool

	rejected atomic.Int64

	conns sync.WaitGroup
}

// New creates a Server for addr.
// Defaults: TCP_NODELAY on, 30s keep-alive, 10s shutdown timeout, no-op logger.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		shutdown:  DefaultShutdownTimeout,
		keepAlive: DefaultKeepAlive,
		noDelay:   true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start binds the address and accepts connections until ctx is cancelled or a
// fatal error occurs. A bind failure is returned wrapped in ErrBind, a broken
// listener in ErrAccept. Returns ctx.Err() when the context is cancelled;
// use Stop to close the listener and drain connections.
func (s *Server) Start(ctx context.Context, handler ConnectionHandler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerAlreadyRunning
	}

	ln := s.listener
	if ln == nil {
		lc := net.ListenConfig{KeepAlive: s.keepAlive}
		var err error
		ln, err = lc.Listen(ctx, "tcp", s.addr)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s: %w", ErrBind, s.addr, err)
		}
		s.listener = ln
	}
	s.handler = handler
	s.running = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "relay server started",
		logger.Component("listener"),
		logger.Addr(ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		// Connections outlive the accept context; Stop decides when they end.
		errCh <- s.serve(context.WithoutCancel(ctx), ln, handler)
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the listener, then asks the handler to close live connections
// and waits for them within the shutdown timeout.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running || s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	ln, handler := s.listener, s.handler
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down relay server", logger.Component("listener"), slog.Duration("timeout", s.shutdown))

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	var errs []error
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}

	if sh, ok := handler.(Shutdowner); ok {
		if err := sh.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("%w after %s", ErrShutdownTimeout, s.shutdown))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("relay server shutdown error", logger.Component("listener"), logger.Error(err))
		return err
	}

	s.logger.Info("relay server shutdown complete", logger.Component("listener"))
	return nil
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// It starts the server and stops it gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context, handler ConnectionHandler) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx, handler)
		}()

		select {
		case <-ctx.Done():
			if stopErr := s.Stop(); stopErr != nil {
				s.logger.Error("failed to stop relay server during context cancellation", logger.Error(stopErr))
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
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) serve(ctx context.Context, ln net.Listener, handler ConnectionHandler) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isBrokenListener(err) {
				s.logger.ErrorContext(ctx, "accept failed, listener unusable",
					logger.Component("listener"),
					logger.Error(err))
				return fmt.Errorf("%w: %w", ErrAccept, err)
			}

			delay = nextAcceptDelay(delay)
			s.logger.WarnContext(ctx, "accept failed, retrying",
				logger.Component("listener"),
				logger.Error(err),
				slog.Duration("retry_in", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !s.admit(conn) {
			s.rejected.Add(1)
			s.logger.WarnContext(ctx, "connection rejected by admission limit",
				logger.Component("listener"),
				logger.RemoteAddr(conn.RemoteAddr()))
			_ = conn.Close()
			continue
		}

		if tc, ok := conn.(*net.TCPConn); ok {
			if err := tc.SetNoDelay(s.noDelay); err != nil {
				s.logger.WarnContext(ctx, "failed to set TCP_NODELAY",
					logger.Component("listener"),
					logger.RemoteAddr(conn.RemoteAddr()),
					logger.Error(err))
			}
		}

		serveConn, err := handler.Register(conn)
		if err != nil {
			s.logger.DebugContext(ctx, "connection refused by handler",
				logger.Component("listener"),
				logger.RemoteAddr(conn.RemoteAddr()),
				logger.Error(err))
			_ = conn.Close()
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			serveConn(ctx)
		}()
	}
}

// Rejected returns how many connections the admission limit turned away.
func (s *Server) Rejected() int64 { return s.rejected.Load() }

func (s *Server) admit(conn net.Conn) bool {
	if s.admission == nil {
		return true
	}
	return s.admission.Allow(remoteHost(conn.RemoteAddr()))
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return MinAcceptRetryDelay
	}
	return min(prev*2, MaxAcceptRetryDelay)
}

// isBrokenListener reports accept errors that mean the listening socket itself
// is invalid. Every other accept error concerns a single pending connection
// or a passing resource shortage and is retried.
func isBrokenListener(err error) bool {
	return errors.Is(err, syscall.EBADF) ||
		errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTSOCK)
}
