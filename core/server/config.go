package server

import (
	"errors"
	"time"
)

// ErrMissingAddress is returned when server address is not provided.
var ErrMissingAddress = errors.New("server address is required")

// Config holds listener configuration with environment variable support.
type Config struct {
	Addr            string        `env:"RELAY_ADDR" envDefault:":4444"`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	KeepAlive       time.Duration `env:"RELAY_TCP_KEEPALIVE" envDefault:"30s"`
	NoDelay         bool          `env:"RELAY_TCP_NODELAY" envDefault:"true"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":4444",
		ShutdownTimeout: DefaultShutdownTimeout,
		KeepAlive:       DefaultKeepAlive,
		NoDelay:         true,
	}
}

// NewFromConfig creates a Server from configuration.
// Additional options can override config values.
func NewFromConfig(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Addr == "" {
		return nil, ErrMissingAddress
	}

	configOpts := []Option{WithNoDelay(cfg.NoDelay)}
	if cfg.ShutdownTimeout > 0 {
		configOpts = append(configOpts, WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	if cfg.KeepAlive != 0 {
		configOpts = append(configOpts, WithKeepAlive(cfg.KeepAlive))
	}

	configOpts = append(configOpts, opts...)

	return New(cfg.Addr, configOpts...), nil
}
