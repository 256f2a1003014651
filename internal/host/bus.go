package host

import (
	"sync"
	"time"
)

// Event kinds.
const (
	EventMapClicked       = "map-clicked"
	EventSelectedFeatures = "selected-features"
)

// Event is a callback published on the bus.
type Event struct {
	Session    string    `json:"session"`
	Kind       string    `json:"kind" enum:"map-clicked,selected-features"`
	LayerID    string    `json:"layerId,omitempty"`
	ExternalID string    `json:"externalId,omitempty"`
	GroupTag   string    `json:"groupTag,omitempty"`
	IDs        []string  `json:"ids,omitempty"`
	At         time.Time `json:"at"`
}

// Bus is a fan-out pub/sub for callback events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// BusCallbacks publishes the callbacks of one session on a bus.
type BusCallbacks struct {
	Bus     *Bus
	Session string
	Now     func() time.Time
}

func (c BusCallbacks) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c BusCallbacks) MapClicked(layerID, externalID string) {
	c.Bus.Publish(Event{
		Session: c.Session, Kind: EventMapClicked,
		LayerID: layerID, ExternalID: externalID, At: c.now(),
	})
}

func (c BusCallbacks) SelectedFeatures(groupTag string, ids []string) {
	c.Bus.Publish(Event{
		Session: c.Session, Kind: EventSelectedFeatures,
		GroupTag: groupTag, IDs: append([]string{}, ids...), At: c.now(),
	})
}
