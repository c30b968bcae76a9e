package topic

import (
	"sync"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/common/pubsub"
)

// Delivery tracks one local subscriber's view of a topic: at-least-once
// event delivery with duplicate suppression by block id idempotency, and
// per-publisher seq ordering (spec §4.5 "Delivery semantics"). Across
// publishers only causal order via acks is guaranteed, so Delivery never
// orders events from distinct publishers relative to one another.
type Delivery struct {
	mu      sync.Mutex
	lastSeq map[PeerId]uint64
	seenBlk map[hash.H]bool
	broker  *pubsub.Broker
}

// NewDelivery creates a Delivery tracker fanning verified events out to
// subscribers via broker.
func NewDelivery() *Delivery {
	return &Delivery{
		lastSeq: make(map[PeerId]uint64),
		seenBlk: make(map[hash.H]bool),
		broker:  pubsub.NewBroker(false),
	}
}

// Accept verifies e and, if it is new and in order for its publisher,
// records it and broadcasts it to subscribers. A duplicate (every one of
// e's blocks already seen) is silently dropped, matching "duplicates
// detected by block ID idempotency". An event whose seq is not exactly one
// past the publisher's last accepted seq is rejected with ErrOutOfOrder —
// callers are expected to have run a causal sync to fill the gap first.
func (d *Delivery) Accept(e *Event) error {
	if err := e.Verify(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.allBlocksSeen(e.Blocks) {
		return nil // at-least-once duplicate, already delivered
	}

	want := d.lastSeq[e.Publisher] + 1
	if e.Seq != want {
		return ErrOutOfOrder
	}

	d.lastSeq[e.Publisher] = e.Seq
	for _, id := range e.Blocks {
		d.seenBlk[id] = true
	}

	eventsDelivered.Inc()
	d.broker.Broadcast(e)
	return nil
}

func (d *Delivery) allBlocksSeen(blocks []hash.H) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, id := range blocks {
		if !d.seenBlk[id] {
			return false
		}
	}
	return true
}

// Subscribe returns a channel of accepted events, closed when cancel is
// called (spec §4.5 "Cancellation": closing the receive side stops
// delivery; here the Unwrap goroutine exits as soon as the underlying
// subscription is closed, which happens within one already-buffered send).
func (d *Delivery) Subscribe() (<-chan *Event, func()) {
	sub := d.broker.Subscribe()
	ch := make(chan *Event, 64)
	pubsub.Unwrap[*Event](sub, ch)
	return ch, sub.Close
}

// LastSeq returns the last accepted seq for publisher, or 0 if none.
func (d *Delivery) LastSeq(publisher PeerId) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeq[publisher]
}
