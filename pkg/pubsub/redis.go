package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub implements PubSub interface using Redis.
type RedisPubSub struct {
	client        *redis.Client
	subscriptions map[*redisSubscription]struct{}
	mu            sync.Mutex
}

// redisSubscription wraps one redis.PubSub connection. Each Subscribe call
// gets its own, so closing one never tears down another subscriber of the
// same channel.
type redisSubscription struct {
	parent *RedisPubSub
	pubsub *redis.PubSub
	ch     chan *Event
	cancel context.CancelFunc
	once   sync.Once
}

// Events returns the subscription's event feed. The channel is closed when
// the subscription is closed.
func (s *redisSubscription) Events() <-chan *Event { return s.ch }

// Close releases only this subscription's redis connection.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		s.parent.remove(s)
	})
	return err
}

// NewRedisPubSub creates a new Redis-based PubSub instance.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[*redisSubscription]struct{}),
	}, nil
}

// Publish publishes an event to the specified channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens a new subscription on the channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		parent: r,
		pubsub: r.client.Subscribe(subCtx, channel),
		ch:     make(chan *Event, 100),
		cancel: cancel,
	}

	r.mu.Lock()
	r.subscriptions[sub] = struct{}{}
	r.mu.Unlock()

	go r.processMessages(subCtx, sub.pubsub, sub.ch)

	return sub, nil
}

func (r *RedisPubSub) remove(sub *redisSubscription) {
	r.mu.Lock()
	delete(r.subscriptions, sub)
	r.mu.Unlock()
}

// Close closes all subscriptions and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := make([]*redisSubscription, 0, len(r.subscriptions))
	for sub := range r.subscriptions {
		subs = append(subs, sub)
	}
	r.subscriptions = make(map[*redisSubscription]struct{})
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	return r.client.Close()
}

// processMessages reads messages from the Redis pubsub and sends them to the event channel.
func (r *RedisPubSub) processMessages(ctx context.Context, pubsub *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
				// Channel full, skip message
			}
		}
	}
}

// GetClient returns the underlying Redis client for advanced operations.
func (r *RedisPubSub) GetClient() *redis.Client {
	return r.client
}
