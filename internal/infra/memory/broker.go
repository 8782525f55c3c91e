package memory

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

// Broker is an in-process implementation of app.Broker.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[chan []byte]struct{}
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		topics: make(map[string]map[chan []byte]struct{}),
		logger: logger,
	}
}

func (b *Broker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			// Slow subscriber: drop its oldest payload so publishers never block.
			select {
			case <-ch:
				b.logger.Warn("subscriber lagging, dropped oldest change", "topic", topic)
			default:
			}
			ch <- payload
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan []byte]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many live subscriptions a topic has.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
