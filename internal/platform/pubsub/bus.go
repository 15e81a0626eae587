// Package pubsub implements the in-process status bus for batch submission
// events. Subscribers register per topic (batch ID); each subscriber owns a
// single delivery goroutine, so its callback never runs concurrently with
// itself and observes events in publish order.
package pubsub

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one status change published on the bus.
type Event struct {
	Topic     string          `json:"topic"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Callback receives events for one subscription.
type Callback func(Event)

// UnsubscribeFunc removes a subscription. Safe to call more than once.
type UnsubscribeFunc func()

type subscriber struct {
	ch       chan Event
	done     chan struct{}
	closeOne sync.Once
}

// Bus is a concurrent-safe registry of topic subscribers.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	buffer int
}

// NewBus creates a Bus. Each subscriber gets a buffered event channel; when
// a subscriber falls behind by more than the buffer, new events for it are
// dropped rather than blocking the publisher.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string]map[*subscriber]struct{}),
		buffer: 64,
	}
}

// Subscribe registers cb for events on topic and returns its unsubscribe
// function. Delivery happens on a dedicated goroutine per subscription.
func (b *Bus) Subscribe(topic string, cb Callback) UnsubscribeFunc {
	sub := &subscriber{
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case evt, ok := <-sub.ch:
				if !ok {
					return
				}
				cb(evt)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		sub.closeOne.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish fans the event out to every subscriber of its topic. Publishing
// never blocks; a full subscriber buffer drops the event for that subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs, ok := b.topics[evt.Topic]
	if !ok {
		return
	}
	for sub := range subs {
		select {
		case sub.ch <- evt:
		default:
			// Subscriber buffer full; skip to avoid blocking.
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
