// Package inmem is an in-process Publisher that fans messages out to channel subscribers.
//
// Publish never blocks: a message is dropped for a subscriber whose channel is full.
package inmem

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/rsnode/transport"
)

// ErrBusClosed is returned when operations are attempted on a closed bus.
var ErrBusClosed = errors.New("bus is closed")

// Message is what subscribers receive.
type Message struct {
	Topic transport.Topic
	Stamp time.Time
	Value interface{}
}

type subscriber struct {
	ch      chan<- Message
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Stats is a snapshot of delivery counters.
type Stats struct {
	Published uint64
	Sent      uint64
	Dropped   uint64
}

// Bus is an in-memory transport.Publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[transport.Topic]map[string]*subscriber
	latched     map[transport.Topic]Message
	closed      bool

	published atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[transport.Topic]map[string]*subscriber),
		latched:     make(map[transport.Topic]Message),
	}
}

// Subscribe registers ch on topic and returns the subscription id. A latched message of the
// topic is delivered immediately when the channel has room.
func (b *Bus) Subscribe(topic transport.Topic, ch chan<- Message) (string, error) {
	if ch == nil {
		return "", errors.New("subscriber channel cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrBusClosed
	}

	id := uuid.NewString()
	subs, ok := b.subscribers[topic]
	if !ok {
		subs = make(map[string]*subscriber)
		b.subscribers[topic] = subs
	}
	sub := &subscriber{ch: ch}
	subs[id] = sub
	if msg, ok := b.latched[topic]; ok {
		b.deliver(sub, msg)
	}
	return id, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(topic transport.Topic, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	subs := b.subscribers[topic]
	if _, ok := subs[id]; !ok {
		return errors.Errorf("no subscription %q on topic %q", id, topic)
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
	return nil
}

// Publish implements transport.Publisher.
func (b *Bus) Publish(topic transport.Topic, msg interface{}, stamp time.Time) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	b.published.Inc()
	m := Message{Topic: topic, Stamp: stamp, Value: msg}
	for _, sub := range b.subscribers[topic] {
		b.deliver(sub, m)
	}
	return nil
}

// PublishLatched implements transport.Latcher.
func (b *Bus) PublishLatched(topic transport.Topic, msg interface{}, stamp time.Time) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.latched[topic] = Message{Topic: topic, Stamp: stamp, Value: msg}
	b.mu.Unlock()
	return b.Publish(topic, msg, stamp)
}

func (b *Bus) deliver(sub *subscriber, m Message) {
	select {
	case sub.ch <- m:
		sub.sent.Inc()
	default:
		sub.dropped.Inc()
	}
}

// SubscriberCount implements transport.Publisher.
func (b *Bus) SubscriberCount(topic transport.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Stats returns delivery counters summed over all subscribers.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := Stats{Published: b.published.Load()}
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			stats.Sent += sub.sent.Load()
			stats.Dropped += sub.dropped.Load()
		}
	}
	return stats
}

// Close drops every subscription. Later calls fail with ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.closed = true
	b.subscribers = nil
	b.latched = nil
	return nil
}
