package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const subscriberBuffer = 64

// Broker carries change notifications over Redis PUBLISH/SUBSCRIBE so every server instance
// and client sees the same feed.
type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, logger: logger}
}

func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so nothing published after it
// returns is missed.
func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	in := ps.Channel()
	out := make(chan []byte, subscriberBuffer)
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
				b.forward(out, topic, []byte(msg.Payload))
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

// forward drops the oldest buffered payload when the subscriber falls behind.
func (b *Broker) forward(out chan []byte, topic string, payload []byte) {
	select {
	case out <- payload:
		return
	default:
	}
	select {
	case <-out:
		b.logger.Warn("subscriber lagging, dropped payload", "topic", topic)
	default:
	}
	select {
	case out <- payload:
	default:
	}
}
