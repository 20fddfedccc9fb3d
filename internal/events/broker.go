package events

import (
	"sync"
)

// defaultQueueSize is the per-subscriber outbound event buffer size.
const defaultQueueSize = 256

// Broker fans events out to subscribers without ever blocking the publisher.
//
// Each subscriber owns a buffered channel; when a subscriber's queue is full
// the event is dropped for that subscriber only and counted. Slow consumers
// never stall ingestion.
type Broker struct {
	queueSize   int
	subscribers map[*Subscriber]struct{}
	mu          sync.RWMutex

	logger Logger
}

// Subscriber receives events from a Broker until unsubscribed.
type Subscriber struct {
	// C delivers events. The channel is closed on Unsubscribe.
	C <-chan Event

	ch chan Event

	// dropped counts events discarded because the queue was full.
	dropped int
	mu      sync.Mutex
}

// Logger is the minimal logging surface the broker needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Option configures a Broker.
type Option func(*Broker)

// WithQueueSize overrides the per-subscriber buffer size.
func WithQueueSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger attaches a logger for drop diagnostics.
func WithLogger(logger Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// NewBroker creates an event broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		queueSize:   defaultQueueSize,
		subscribers: make(map[*Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber and returns it.
// The caller must drain sub.C promptly or accept dropped events.
func (b *Broker) Subscribe() *Subscriber {
	ch := make(chan Event, b.queueSize)
	sub := &Subscriber{C: ch, ch: ch}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
// Only the call that removes the subscriber from the map closes the channel,
// preventing double-close panics on concurrent unsubscribes.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, existed := b.subscribers[sub]
	delete(b.subscribers, sub)
	b.mu.Unlock()

	if existed {
		close(sub.ch)
	}
}

// Publish delivers an event to every subscriber.
//
// Delivery is fire-and-forget: a subscriber whose queue is full has the
// event dropped and its drop counter incremented. Publish never blocks.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			sub.mu.Lock()
			sub.dropped++
			dropped := sub.dropped
			sub.mu.Unlock()

			if b.logger != nil {
				b.logger.Warn("event dropped for slow subscriber",
					"event_type", event.Type,
					"total_dropped", dropped,
				)
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes every remaining subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subscribers = make(map[*Subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}

// Dropped returns how many events this subscriber has missed.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
