package events

import (
	"context"
	"encoding/json"
	"fmt"

	"fixit/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// envelope is the wire format on the Redis channel.
type envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin"`
}

// RedisBroker delivers events locally and relays them to other instances
// over a Redis pub/sub channel.
type RedisBroker struct {
	client  *redis.Client
	router  *Router
	channel string
	origin  string
	logger  *zerolog.Logger
	pubsub  *redis.PubSub
	done    chan struct{}
}

func NewRedisBroker(client *redis.Client, router *Router, channel string, logger *zerolog.Logger) *RedisBroker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisBroker{
		client:  client,
		router:  router,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (b *RedisBroker) Router() *Router { return b.router }

// Publish delivers to local subscribers and then to remote instances. A
// Redis failure is logged; local subscribers are served either way.
func (b *RedisBroker) Publish(ctx context.Context, room, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.router.Deliver(Event{Room: room, Type: event, Payload: raw})

	msg, err := json.Marshal(envelope{Room: room, Event: event, Payload: raw, Origin: b.origin})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, msg).Err(); err != nil {
		metrics.IncEventDropped("redis_publish")
		b.logger.Warn().Err(err).Str("room", room).Str("event", event).Msg("redis publish failed, delivered locally only")
	}
	return nil
}

// Start subscribes to the channel and relays remote envelopes until ctx is
// done. It returns once the subscription is confirmed.
func (b *RedisBroker) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub

	go b.run(ctx, pubsub.Channel())
	return nil
}

func (b *RedisBroker) run(ctx context.Context, messages <-chan *redis.Message) {
	defer close(b.done)
	defer b.pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Error().Err(err).Msg("invalid room envelope")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.router.Deliver(Event{Room: env.Room, Type: env.Event, Payload: env.Payload})
		}
	}
}

// Wait blocks until the relay loop started by Start has exited.
func (b *RedisBroker) Wait() {
	if b.pubsub == nil {
		return
	}
	<-b.done
}
