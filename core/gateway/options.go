package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.logger = log
		}
	}
}

// WithReadinessCheck adds probes that /ready runs in order.
func WithReadinessCheck(fn ...func(context.Context) error) Option {
	return func(g *Gateway) {
		g.readiness = append(g.readiness, fn...)
	}
}

// WithShutdownTimeout bounds Stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.shutdown = d
		}
	}
}

// WithReadHeaderTimeout bounds how long a client may take to send request headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.readHeaderTimeout = d
		}
	}
}

// WithMaxMessageSize limits inbound WebSocket messages. 0 disables the limit.
func WithMaxMessageSize(n int64) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.maxMessageSize = n
		}
	}
}

// WithWriteTimeout bounds each outbound WebSocket write. 0 disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d >= 0 {
			g.writeTimeout = d
		}
	}
}

// WithBufferSizes sets the WebSocket read and write buffer sizes.
func WithBufferSizes(read, write int) Option {
	return func(g *Gateway) {
		if read > 0 {
			g.upgrader.ReadBufferSize = read
		}
		if write > 0 {
			g.upgrader.WriteBufferSize = write
		}
	}
}

// WithOriginCheck replaces the same-origin check of the WebSocket upgrade.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(g *Gateway) {
		g.upgrader.CheckOrigin = fn
	}
}

// WithAllowedOrigins accepts upgrades only from the listed Origin values.
// Requests without an Origin header (non-browser clients) are always accepted.
// A single "*" accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(g *Gateway) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if o == "*" {
				g.upgrader.CheckOrigin = func(*http.Request) bool { return true }
				return
			}
			allowed[o] = struct{}{}
		}
		g.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// WithListener serves on an existing listener instead of binding addr.
func WithListener(ln net.Listener) Option {
	return func(g *Gateway) {
		g.listener = ln
	}
}
