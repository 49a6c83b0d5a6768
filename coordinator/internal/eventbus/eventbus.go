// Package eventbus is the coordinator's EventBus: a bounded pub/sub that
// lets /events subscribers watch the queue and worker fleet live. The
// publisher (Scheduler/JobLifecycle) must never block on a slow subscriber,
// so each subscriber gets its own bounded channel and is dropped rather
// than allowed to back-pressure the whole bus.
package eventbus

import (
	"sync"
)

// backlogCap bounds each subscriber's channel; a subscriber that falls this
// far behind is disconnected and must re-subscribe to get a fresh snapshot.
const backlogCap = 1000

// Event is one notification published to the bus. Kind is a short,
// stable tag ("file.updated", "worker.updated", "stats.updated"); Payload
// is whatever JSON-marshalable value matches that kind.
type Event struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Subscription is a single subscriber's inbox. Closed by the bus itself
// when the subscriber falls behind; callers detect that by Events() being
// closed, and by Dropped being true when it happens.
type Subscription struct {
	id      int64
	events  chan Event
	bus     *Bus
	dropped bool
	mu      sync.Mutex
}

// Events returns the channel to receive published events on. It is closed
// when the bus drops this subscriber for a full backlog, or when
// Unsubscribe is called.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped reports whether the bus disconnected this subscriber for falling
// behind, as opposed to a normal Unsubscribe.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Bus is the coordinator-wide event broadcaster.
type Bus struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*Subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int64]*Subscription)}
}

// Subscribe registers a new subscriber with a bounded inbox.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		events: make(chan Event, backlogCap),
		bus:    b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub from the bus and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.events)
}

// Publish fans out evt to every live subscriber without blocking: a
// subscriber whose inbox is full is dropped on the spot rather than stalling
// the publisher.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		select {
		case sub.events <- evt:
		default:
			sub.mu.Lock()
			sub.dropped = true
			sub.mu.Unlock()
			delete(b.subs, id)
			close(sub.events)
		}
	}
}

// SubscriberCount reports how many subscribers are currently attached.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
