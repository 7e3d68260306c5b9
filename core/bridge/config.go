package bridge

// Config holds bridge configuration with environment variable support.
type Config struct {
	Enabled bool   `env:"BRIDGE_ENABLED" envDefault:"false"`
	Channel string `env:"BRIDGE_CHANNEL" envDefault:"relayhub"`
}

// DefaultConfig returns a disabled bridge on the default channel.
func DefaultConfig() Config {
	return Config{Channel: DefaultChannel}
}

// NewFromConfig creates a Bridge from configuration.
// Additional options can override config values.
func NewFromConfig(cfg Config, hub Hub, broker Broker, opts ...Option) (*Bridge, error) {
	if cfg.Channel == "" {
		return nil, ErrMissingChannel
	}

	configOpts := append([]Option{WithChannel(cfg.Channel)}, opts...)
	return New(hub, broker, configOpts...), nil
}
