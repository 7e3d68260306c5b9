package gateway

import "time"

// Config holds gateway configuration with environment variable support.
// An empty Addr disables the gateway.
type Config struct {
	Addr              string        `env:"GATEWAY_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"GATEWAY_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"GATEWAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"GATEWAY_WS_WRITE_TIMEOUT" envDefault:"10s"`
	MaxMessageSize    int64         `env:"GATEWAY_WS_MAX_MESSAGE_SIZE" envDefault:"8388608"`
	AllowedOrigins    []string      `env:"GATEWAY_ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		MaxMessageSize:    DefaultMaxMessageSize,
	}
}

// Enabled reports whether the gateway should be started.
func (c Config) Enabled() bool { return c.Addr != "" }

// NewFromConfig creates a Gateway for hub from configuration.
// Additional options can override config values.
func NewFromConfig(cfg Config, hub Hub, opts ...Option) (*Gateway, error) {
	if cfg.Addr == "" {
		return nil, ErrMissingAddress
	}

	configOpts := []Option{
		WithReadHeaderTimeout(cfg.ReadHeaderTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithWriteTimeout(cfg.WriteTimeout),
		WithMaxMessageSize(cfg.MaxMessageSize),
		WithAllowedOrigins(cfg.AllowedOrigins...),
	}
	configOpts = append(configOpts, opts...)

	return New(cfg.Addr, hub, configOpts...), nil
}
