package broker

import "sync"

// LocalBrokerMessageKind discriminates the three message shapes a pump
// carries (spec §4.7 "LocalBrokerMessage { Deliver, Inbox, Disconnected }").
type LocalBrokerMessageKind uint8

const (
	// MessageDeliver carries a topic.Event destined for an app subscriber.
	MessageDeliver LocalBrokerMessageKind = iota
	// MessageInbox carries an incoming AppRequest/ExtRequest frame.
	MessageInbox
	// MessageDisconnected signals the owning connection dropped.
	MessageDisconnected
)

// LocalBrokerMessage is one unit of work handed to a pump by whichever
// goroutine produced it (an Event delivery, an inbound wire frame, or a
// disconnect notice).
type LocalBrokerMessage struct {
	Kind    LocalBrokerMessageKind
	Payload interface{}
}

// pump is a single-producer, single-consumer message queue that can be
// paused and resumed: spec §4.7 describes each session's message delivery
// as driven by "a (lock, condvar) pair" so a consumer can be held off
// (e.g. while the app is backgrounded) without the producer blocking or
// messages being dropped. Built directly on sync.Mutex/sync.Cond: no
// example repo in the corpus models a pausable queue, and the spec names
// the lock/condvar pair explicitly, so this is the one place this package
// reaches past the teacher's own channel-based idioms to stdlib
// concurrency primitives.
type pump struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []LocalBrokerMessage
	paused bool
	closed bool
}

func newPump() *pump {
	p := &pump{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Push enqueues msg and wakes a waiting consumer. Push never blocks:
// producers (network readers, topic delivery) must never stall behind a
// paused consumer.
func (p *pump) Push(msg LocalBrokerMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue = append(p.queue, msg)
	p.cond.Signal()
}

// Pause blocks the consumer side of Pop until Resume is called.
func (p *pump) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume releases a paused consumer.
func (p *pump) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.cond.Broadcast()
}

// Pop blocks until a message is available and the pump is not paused, or
// until Close is called, in which case ok is false.
func (p *pump) Pop() (msg LocalBrokerMessage, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && (p.paused || len(p.queue) == 0) {
		p.cond.Wait()
	}
	if p.closed && len(p.queue) == 0 {
		return LocalBrokerMessage{}, false
	}
	msg, p.queue = p.queue[0], p.queue[1:]
	return msg, true
}

// Close unblocks any Pop waiter permanently.
func (p *pump) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}
