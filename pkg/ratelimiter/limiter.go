package ratelimiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// Limiter keeps an in-memory token bucket per key. Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupInterval time.Duration
	staleAfter      time.Duration
	logger          *slog.Logger
	now             func() time.Time

	cancel  context.CancelFunc
	loopGen uint64
	running atomic.Bool

	allowed        atomic.Int64
	rejected       atomic.Int64
	bucketsCreated atomic.Int64
	bucketsRemoved atomic.Int64
}

// Stats is a point-in-time snapshot of limiter counters.
type Stats struct {
	Allowed        int64 `json:"allowed"`
	Rejected       int64 `json:"rejected"`
	BucketsCreated int64 `json:"buckets_created"`
	BucketsRemoved int64 `json:"buckets_removed"`
	ActiveBuckets  int   `json:"active_buckets"`
	Running        bool  `json:"running"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCleanupInterval sets how often stale buckets are dropped by Start.
func WithCleanupInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cleanupInterval = d
		}
	}
}

// WithStaleAfter sets how long an untouched bucket is kept.
func WithStaleAfter(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a Limiter. Call Run or Start to drop stale buckets in the background.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:             cfg,
		buckets:         make(map[string]*bucket),
		cleanupInterval: time.Minute,
		staleAfter:      10 * time.Minute,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Allow takes one token from key's bucket and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Capacity, lastRefill: now}
		l.buckets[key] = b
		l.bucketsCreated.Add(1)
	}
	b.lastAccess = now

	// Cap the interval count so a long idle period cannot overflow.
	maxIntervals := int64(l.cfg.Capacity/l.cfg.RefillRate + 1)
	intervals := min(int64(now.Sub(b.lastRefill)/l.cfg.RefillInterval), maxIntervals)
	if intervals > 0 {
		b.tokens = min(b.tokens+int(intervals)*l.cfg.RefillRate, l.cfg.Capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.cfg.RefillInterval)
		if b.tokens == l.cfg.Capacity {
			b.lastRefill = now
		}
	}

	if b.tokens <= 0 {
		l.rejected.Add(1)
		return false
	}
	b.tokens--
	l.allowed.Add(1)
	return true
}

// Reset forgets key's bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Start drops stale buckets every cleanup interval until ctx is cancelled or
// Stop is called. It blocks; use Run with errgroup.
func (l *Limiter) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.loopGen++
	gen := l.loopGen
	l.running.Store(true)
	l.mu.Unlock()

	defer func() {
		cancel()

		// A loop ended by its context must not look started to Stop or Start.
		l.mu.Lock()
		if l.loopGen == gen {
			l.cancel = nil
			l.running.Store(false)
		}
		l.mu.Unlock()
	}()

	l.logger.InfoContext(ctx, "rate limiter cleanup started", slog.Duration("cleanup_interval", l.cleanupInterval))

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.removeStale()
		}
	}
}

// Stop ends the cleanup loop started by Start.
func (l *Limiter) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return ErrNotStarted
	}
	l.cancel()
	l.cancel = nil
	return nil
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (l *Limiter) Run(ctx context.Context) func() error {
	return func() error {
		err := l.Start(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}

// Stats returns a snapshot of the limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	active := len(l.buckets)
	l.mu.Unlock()

	return Stats{
		Allowed:        l.allowed.Load(),
		Rejected:       l.rejected.Load(),
		BucketsCreated: l.bucketsCreated.Load(),
		BucketsRemoved: l.bucketsRemoved.Load(),
		ActiveBuckets:  active,
		Running:        l.running.Load(),
	}
}

// Healthcheck fails when the cleanup loop is not running.
func (l *Limiter) Healthcheck(context.Context) error {
	if !l.running.Load() {
		return ErrCleanupStopped
	}
	return nil
}

func (l *Limiter) removeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastAccess) > l.staleAfter {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		l.bucketsRemoved.Add(int64(removed))
	}
}
