package service

import (
	"sync"
	"sync/atomic"
)

// Event carries the result of work finished outside a request: a
// debounced marker load, a pyramid scan or a popup series fetch.
type Event struct {
	Action string // "markers", "tiles", "popup"
	ID     string // session id
	Result *SyncResult
}

// EventBus delivers session events to subscribers of that session, or to
// every subscriber registered with an empty id.
type EventBus struct {
	mu      sync.RWMutex
	topics  map[string]map[chan Event]struct{}
	dropped atomic.Int64
}

func NewEventBus() *EventBus {
	return &EventBus{topics: make(map[string]map[chan Event]struct{})}
}

// Publish never blocks. An event a slow subscriber has no room for is
// counted and dropped; the next result carries the full layer stack.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, topic := range []string{e.ID, ""} {
		for ch := range b.topics[topic] {
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// Subscribe registers a buffered channel for the events of session id
// ("" for all sessions). The returned cancel func unregisters and closes
// the channel; it is safe to call more than once.
func (b *EventBus) Subscribe(id string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	subs := b.topics[id]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		b.topics[id] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(subs, ch)
			if len(b.topics[id]) == 0 {
				delete(b.topics, id)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of channels listening on session id.
func (b *EventBus) Subscribers(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[id])
}

// Dropped returns how many events were skipped for full channels.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }
