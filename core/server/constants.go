package server

import "time"

const (
	// DefaultShutdownTimeout is the default time Stop waits for connections to drain.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultKeepAlive is the default TCP keep-alive period for accepted connections.
	DefaultKeepAlive = 30 * time.Second

	// MinAcceptRetryDelay and MaxAcceptRetryDelay bound the backoff after a
	// failed accept.
	MinAcceptRetryDelay = 5 * time.Millisecond
	MaxAcceptRetryDelay = time.Second
)
