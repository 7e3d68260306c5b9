package gateway

import "time"

const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultMaxMessageSize    = 8 << 20
	DefaultBufferSize        = 4 << 10
)
