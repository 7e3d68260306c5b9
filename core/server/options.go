package server

import (
	"log/slog"
	"net"
	"time"
)

// Option configures server behavior.
type Option func(*Server)

// WithLogger sets a custom logger for server operations. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithShutdownTimeout sets the maximum time Stop waits for connections to drain.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdown = timeout
		}
	}
}

// WithKeepAlive sets the TCP keep-alive period. Negative disables keep-alives.
func WithKeepAlive(period time.Duration) Option {
	return func(s *Server) {
		s.keepAlive = period
	}
}

// WithNoDelay toggles TCP_NODELAY on accepted connections. On by default:
// relay frames are small and latency matters more than throughput.
func WithNoDelay(enabled bool) Option {
	return func(s *Server) {
		s.noDelay = enabled
	}
}

// WithListener serves on an existing listener instead of binding addr.
func WithListener(ln net.Listener) Option {
	return func(s *Server) {
		s.listener = ln
	}
}

// WithAdmission limits which accepted connections are served, keyed by
// remote host. Rejected connections are closed immediately.
func WithAdmission(a Admission) Option {
	return func(s *Server) {
		s.admission = a
	}
}
