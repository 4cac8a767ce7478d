package pubsub

import (
	"context"
	"sync"
)

// MemoryPubSub implements PubSub in process memory. It backs single-process
// deployments and tests, where the publisher and all subscribers share the
// same address space and a broker would add nothing but latency.
type MemoryPubSub struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	closed        bool
}

type memorySubscription struct {
	parent  *MemoryPubSub
	channel string
	ch      chan *Event
	cancel  context.CancelFunc
	once    sync.Once
}

// Events returns the subscription's event feed. The channel is closed when
// the subscription is closed.
func (s *memorySubscription) Events() <-chan *Event { return s.ch }

// Close releases only this subscription; other subscribers of the same
// channel keep receiving.
func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		// Removal takes the write lock, so no publisher can still hold a
		// reference when the channel is closed.
		s.parent.remove(s)
		close(s.ch)
	})
	return nil
}

// NewMemoryPubSub creates a new in-memory PubSub instance.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		subscriptions: make(map[string][]*memorySubscription),
	}
}

// Publish delivers the event to every subscriber of the channel.
// Subscribers with a full buffer are skipped, matching the broker-backed
// implementations' drop-on-backpressure behavior.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions[channel] {
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
	return nil
}

// Subscribe opens a new subscription on the channel. Cancelling ctx closes
// the subscription as if Close had been called.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		parent:  m,
		channel: channel,
		ch:      make(chan *Event, 100),
		cancel:  cancel,
	}
	m.subscriptions[channel] = append(m.subscriptions[channel], sub)
	m.mu.Unlock()

	go func() {
		<-subCtx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Close tears down all subscriptions.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySubscription
	for _, subs := range m.subscriptions {
		all = append(all, subs...)
	}
	m.subscriptions = make(map[string][]*memorySubscription)
	m.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}

// remove drops a single subscription from the channel's list.
func (m *MemoryPubSub) remove(target *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subscriptions[target.channel]
	for i, sub := range subs {
		if sub == target {
			m.subscriptions[target.channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
