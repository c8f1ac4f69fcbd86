package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Bus fans envelopes out to every process holding connections.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
}

// LocalBus delivers straight to the in-process hub.
type LocalBus struct {
	hub *Hub
}

// NewLocalBus wraps hub.
func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

// Publish implements Bus.
func (b *LocalBus) Publish(_ context.Context, env Envelope) error {
	b.hub.Deliver(env)
	return nil
}

// DefaultEventsChannel is the Redis channel carrying chat envelopes.
const DefaultEventsChannel = "guardpost:chat:events"

// RedisBus publishes envelopes on a Redis channel. Every process runs Start
// to deliver what it receives to its own hub.
type RedisBus struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBus constructs a RedisBus on channel, or DefaultEventsChannel.
func NewRedisBus(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("chat: encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("chat: publish: %w", err)
	}
	return nil
}

// Start subscribes to the channel and returns once the subscription is
// confirmed. Delivery runs until ctx is done or Close is called.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return nil
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("chat: subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.run(ctx, pubsub, b.done)
	return nil
}

func (b *RedisBus) run(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("chat: discard malformed envelope", slog.Any("error", err))
				continue
			}
			b.hub.Deliver(env)
		}
	}
}

// Close stops delivery and releases the subscription.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

var (
	_ Bus = (*LocalBus)(nil)
	_ Bus = (*RedisBus)(nil)
)
