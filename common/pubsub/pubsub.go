// Package pubsub implements a generic, in-process broadcast primitive used
// by the topic layer and by RDF/ORM change subscriptions alike. The shape
// (Broker.Subscribe, Subscription.Unwrap(typedCh)) follows the teacher's own
// common/pubsub idiom as used from registry.go and roothash/api.go.
package pubsub

import "sync"

// Subscription represents a subscription to a Broker.
type Subscription struct {
	broker *Broker
	id     uint64
	outCh  chan any
}

// Close cancels the subscription; the broker will no longer deliver to it.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s.id)
}

// Unwrap starts a goroutine that forwards every message delivered to this
// subscription onto typedCh, until the subscription is closed (at which
// point typedCh is closed too). Values that fail the type assertion are
// dropped, which should never happen for a correctly wired broker/consumer
// pair.
func Unwrap[T any](s *Subscription, typedCh chan<- T) {
	go func() {
		defer close(typedCh)
		for v := range s.outCh {
			tv, ok := v.(T)
			if !ok {
				continue
			}
			typedCh <- tv
		}
	}()
}

// Broker is a single-producer, multi-consumer fan-out point.
type Broker struct {
	mu               sync.Mutex
	nextID           uint64
	subs             map[uint64]*Subscription
	lastValue        any
	hasLast          bool
	lastValueEnabled bool
}

// NewBroker creates a new broker. If includeLast is true, a newly
// subscribed consumer immediately receives the most recently broadcast
// value, matching WatchBlocks' "latest block pushed immediately" contract.
func NewBroker(includeLast bool) *Broker {
	return &Broker{
		subs:             make(map[uint64]*Subscription),
		lastValueEnabled: includeLast,
	}
}

// Subscribe registers a new subscription against the broker.
func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		broker: b,
		id:     b.nextID,
		outCh:  make(chan any, 64),
	}
	b.subs[sub.id] = sub

	if b.lastValueEnabled && b.hasLast {
		select {
		case sub.outCh <- b.lastValue:
		default:
		}
	}

	return sub
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.outCh)
	}
}

// Broadcast delivers v to every current subscriber. Slow subscribers with a
// full buffer do not block the broadcaster; they silently drop the message.
// Broker itself neither acknowledges nor retries; topic.Delivery, for
// instance, suppresses duplicates and rejects sequence gaps on top of it
// but does not re-send dropped messages.
func (b *Broker) Broadcast(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastValueEnabled {
		b.lastValue = v
		b.hasLast = true
	}

	for _, sub := range b.subs {
		select {
		case sub.outCh <- v:
		default:
		}
	}
}

// NumSubscribers returns the current subscriber count.
func (b *Broker) NumSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
