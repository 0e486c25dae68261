package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces Memz channels on a shared Redis.
const channelPrefix = "memz:changes:"

// RedisBroker is a Broker backed by Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a broker on an existing client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends a change signal on topic's channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string) error {
	if err := b.client.Publish(ctx, channelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning,
// so a publish issued right after Subscribe is never missed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := b.client.Subscribe(ctx, channelPrefix+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()

	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				slog.Debug("closing redis subscription",
					slog.String("topic", topic),
					slog.Any("error", err),
				)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	return out, nil
}
