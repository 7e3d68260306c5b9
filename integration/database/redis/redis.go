package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses cfg.ConnectionURL, creates a client and pings it until it
// answers or cfg.RetryAttempts is exhausted. The wait between attempts doubles
// after each failure. The whole procedure is bounded by cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client := redis.NewClient(opts)
	if err := waitReady(ctx, client, cfg.RetryAttempts, cfg.RetryInterval); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Healthcheck returns a readiness probe that pings the client.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

func waitReady(ctx context.Context, client redis.UniversalClient, attempts int, interval time.Duration) error {
	attempts = max(attempts, 1)

	var lastErr error
	for attempt := range attempts {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		wait := interval << attempt
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrRedisNotReady, errors.Join(lastErr, ctx.Err()))
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRedisNotReady, attempts, lastErr)
}
