// Package notifications fans domain events out to live subscribers, locally and
// across instances through Redis pub/sub.
package notifications

import (
	"context"
	"log/slog"
	"sync"

	"socialgraph/internal/observability"
)

// TopicPostCreated carries a JSON-encoded PostPayload for every created post.
const TopicPostCreated = "posts:created"

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 16

type subscriber struct {
	ch chan []byte
}

// Broker is an in-process topic fan-out. Slow subscribers lose messages rather
// than stall publishers.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	buffer int
}

// NewBroker creates a Broker. buffer <= 0 uses DefaultSubscriberBuffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broker{
		topics: make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers for messages on topic. The channel is closed once ctx is done.
func (b *Broker) Subscribe(ctx context.Context, topic string) <-chan []byte {
	sub := &subscriber{ch: make(chan []byte, b.buffer)}

	b.mu.Lock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.topics[topic], sub)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
		close(sub.ch)
		b.mu.Unlock()
	}()

	return sub.ch
}

// Publish delivers message to every current subscriber of topic and returns the
// number that received it.
func (b *Broker) Publish(topic string, message []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- message:
			delivered++
		default:
			observability.BroadcastDrops.WithLabelValues(topic, "full").Inc()
			observability.GlobalLogger.Warn("subscriber buffer full, dropped message",
				slog.String("topic", topic))
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers of topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
