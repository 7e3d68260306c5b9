package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/relayhub/core/frame"
)

// Config holds the relay tuning knobs with environment variable support.
type Config struct {
	InboxSize       int           `env:"RELAY_INBOX_SIZE" envDefault:"4096"`
	MailboxCapacity int           `env:"RELAY_MAILBOX_CAPACITY" envDefault:"1024"` // 0 = unbounded
	OverflowPolicy  string        `env:"RELAY_OVERFLOW_POLICY" envDefault:"drop_newest"`
	MaxFrameSize    int           `env:"FRAME_MAX_SIZE" envDefault:"8388608"` // 8 MiB
	WriteTimeout    time.Duration `env:"RELAY_WRITE_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns a Config with the same values as the env defaults.
func DefaultConfig() Config {
	return Config{
		InboxSize:       DefaultInboxSize,
		MailboxCapacity: DefaultMailboxCapacity,
		OverflowPolicy:  DropNewest.String(),
		MaxFrameSize:    frame.DefaultMaxFrameSize,
		WriteTimeout:    10 * time.Second,
	}
}

// NewFromConfig builds a distributor and a hub wired to it.
func NewFromConfig(cfg Config, log *slog.Logger) (*Distributor, *Hub, error) {
	policy, err := ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MailboxCapacity < 0 {
		return nil, nil, fmt.Errorf("relay: mailbox capacity must not be negative, got %d", cfg.MailboxCapacity)
	}

	dist := NewDistributor(
		WithInboxSize(cfg.InboxSize),
		WithDistributorLogger(log),
	)

	hub := NewHub(dist,
		WithMailboxCapacity(cfg.MailboxCapacity),
		WithOverflowPolicy(policy),
		WithHubLogger(log),
		WithStreamOptions(
			WithFrameOptions(frame.WithMaxFrameSize(cfg.MaxFrameSize)),
			WithWriteTimeout(cfg.WriteTimeout),
		),
	)

	return dist, hub, nil
}
