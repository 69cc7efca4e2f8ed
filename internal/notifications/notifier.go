package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes events through Redis so every API instance sees them, and
// forwards what it receives into the local Broker. Without Redis, or while the
// relay is not running, it also publishes straight to the Broker.
type Notifier struct {
	rdb      *redis.Client
	broker   *Broker
	relaying atomic.Bool
}

// NewNotifier creates a Notifier. rdb may be nil.
func NewNotifier(rdb *redis.Client, broker *Broker) *Notifier {
	return &Notifier{rdb: rdb, broker: broker}
}

// Broker returns the local fan-out the notifier delivers into.
func (n *Notifier) Broker() *Broker {
	return n.broker
}

// PublishPostCreated announces a newly created post.
func (n *Notifier) PublishPostCreated(ctx context.Context, payload models.PostPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if n.rdb == nil {
		n.broker.Publish(TopicPostCreated, data)
		return nil
	}

	relayed := n.relaying.Load()
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "publish")
	err = n.rdb.Publish(ctx, TopicPostCreated, data).Err()
	observability.EndSpan(span, err)
	if err != nil || !relayed {
		// Nothing will come back through the relay for local subscribers.
		n.broker.Publish(TopicPostCreated, data)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", TopicPostCreated, err)
	}
	return nil
}

// Relaying reports whether the Redis relay is forwarding events into the Broker.
func (n *Notifier) Relaying() bool {
	return n.relaying.Load()
}

// StartPostSubscriber relays post-created messages from Redis into the Broker
// until ctx is done. It returns once the subscription is confirmed.
func (n *Notifier) StartPostSubscriber(ctx context.Context) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, TopicPostCreated)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrors.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("subscribe %s: %w", TopicPostCreated, err)
	}
	ch := sub.Channel()
	n.relaying.Store(true)

	go func() {
		defer func() { _ = sub.Close() }()
		defer n.relaying.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in post subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					n.broker.Publish(msg.Channel, []byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}
