package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker is the pub/sub transport between hub processes.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is confirmed. The returned
	// channel is closed when the subscription ends; close releases it.
	Subscribe(ctx context.Context, channel string) (msgs <-chan []byte, close func() error, err error)
}

// RedisBroker is a Broker over Redis PUBLISH and SUBSCRIBE.
type RedisBroker struct {
	client redis.UniversalClient
}

// NewRedisBroker creates a Broker backed by client.
func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrSubscribe, channel, err)
	}

	out := make(chan []byte)
	in := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			}
		}
	}()

	var (
		once     sync.Once
		closeErr error
	)
	closeFn := func() error {
		once.Do(func() {
			close(done)
			closeErr = ps.Close()
		})
		return closeErr
	}
	return out, closeFn, nil
}
