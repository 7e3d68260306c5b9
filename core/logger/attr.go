package logger

import (
	"log/slog"
	"net"
	"time"
)

// Attribute helpers return the empty Attr for nil or empty input, so calls like
// log.Info("msg", logger.Error(err)) need no nil checks. slog drops empty attrs.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Elapsed logs the time passed since start.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// Component creates an attribute for component names.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event creates an attribute for event names.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Reason describes why something ended.
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}

// Count creates a generic counter attribute.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// CorrelationID ties log lines of one connection together.
func CorrelationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("correlation_id", id)
}

// PeerID identifies a relay peer.
func PeerID(id uint64) slog.Attr {
	return slog.Uint64("peer_id", id)
}

// RemoteAddr records the remote end of a connection.
func RemoteAddr(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.Attr{}
	}
	return slog.String("remote_addr", addr.String())
}

// Addr records a listen address.
func Addr(addr string) slog.Attr {
	if addr == "" {
		return slog.Attr{}
	}
	return slog.String("addr", addr)
}

// Transport names the transport a peer joined through (tcp, websocket, bridge).
func Transport(name string) slog.Attr {
	return slog.String("transport", name)
}

// BytesIn creates an attribute for incoming bytes.
func BytesIn(n int64) slog.Attr {
	return slog.Int64("bytes_in", n)
}

// BytesOut creates an attribute for outgoing bytes.
func BytesOut(n int64) slog.Attr {
	return slog.Int64("bytes_out", n)
}
