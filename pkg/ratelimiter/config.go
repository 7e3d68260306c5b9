package ratelimiter

import (
	"fmt"
	"time"
)

// Config describes one token bucket per key: Capacity tokens at most,
// RefillRate tokens added every RefillInterval. Capacity 0 disables limiting,
// so setting Capacity alone is enough to turn it on.
type Config struct {
	Capacity       int           `env:"RATE_CAPACITY" envDefault:"0"`
	RefillRate     int           `env:"RATE_REFILL" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_INTERVAL" envDefault:"1s"`
}

// Enabled reports whether the config asks for limiting at all.
func (c Config) Enabled() bool { return c.Capacity > 0 }

// Validate checks that an enabled config can refill.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %s", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}
