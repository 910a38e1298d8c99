package registry

import (
	"sync"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// Subscription is one reader's bounded event queue. Slow readers lose
// the oldest events instead of back-pressuring the producers.
type Subscription struct {
	C chan model.Event

	bus *Bus
	id  int
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus fans events out to any number of subscribers.
//
// Thread-safe. Publish never blocks: each subscriber has a bounded
// queue with drop-oldest overflow.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]*Subscription
	nextID  int
	queue   int
	dropped int64
	closed  bool
}

// NewBus creates a Bus whose subscriber queues hold queue events.
func NewBus(queue int) *Bus {
	if queue < 1 {
		queue = 1
	}
	return &Bus{
		subs:  make(map[int]*Subscription),
		queue: queue,
	}
}

// Subscribe registers a new reader.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		C:   make(chan model.Event, b.queue),
		bus: b,
		id:  b.nextID,
	}
	b.nextID++
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.C)
}

// Publish delivers an event to every subscriber, evicting the oldest
// queued event from any subscriber whose queue is full.
func (b *Bus) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		for {
			select {
			case sub.C <- ev:
			default:
				select {
				case <-sub.C:
					b.dropped++
				default:
				}
				continue
			}
			break
		}
	}
}

// Dropped returns the total events evicted from slow subscribers.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches and closes every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.C)
	}
}
