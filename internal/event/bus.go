// Package event fans events out to UI clients.
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event and is expected to resynchronize from the next tab-state snapshot.
package event

import (
	"sync"
	"time"

	"github.com/nao1215/unseen/internal/model"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Publisher is the write side of the bus. Components that only emit events
// depend on this interface.
type Publisher interface {
	Publish(eventType string, data any)
}

// Bus is a non-blocking broadcast of model.Event values.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]chan model.Event
	nextID uint64
	closed bool
	now    func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]chan model.Event),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber. The returned cancel function removes it
// and closes the channel; calling it more than once is safe.
func (b *Bus) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan model.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish sends an event to every subscriber that has room for it.
func (b *Bus) Publish(eventType string, data any) {
	ev := model.Event{Type: eventType, Time: b.now(), Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel and later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, any) {}

// Recorder is a Publisher that keeps every event. It is meant for tests of
// packages that emit events.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

// Publish records the event.
func (r *Recorder) Publish(eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, model.Event{Type: eventType, Time: time.Now(), Data: data})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []model.Event {
	var out []model.Event
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
