package notify

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/domain"
)

const defaultBuffer = 16

type subscriber struct {
	filter func(domain.OrderEvent) bool
	ch     chan domain.OrderEvent
}

// Hub fans order events out to in-process subscribers. Publish never blocks;
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	closed bool
	log    zerolog.Logger
}

func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		log:    log.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers a filtered subscriber. The returned func removes it and
// closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(filter func(domain.OrderEvent) bool) (<-chan domain.OrderEvent, func()) {
	ch := make(chan domain.OrderEvent, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{filter: filter, ch: ch}

	return ch, func() { h.unsubscribe(id) }
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) Publish(event domain.OrderEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.log.Debug().Str("event_id", event.ID).Msg("subscriber behind, event dropped")
		}
	}
}

// Subscribers reports the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
