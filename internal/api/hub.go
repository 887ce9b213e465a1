package api

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/state"
)

// DefaultClientBuffer is the per-client queue length used when NewHub is
// given a non-positive size.
const DefaultClientBuffer = 64

// Hub fans bus events out to stream clients. It holds a single bus
// subscription; a client whose queue is full is dropped.
type Hub struct {
	mu          sync.Mutex
	clients     map[chan EventMessage]struct{}
	buffer      int
	log         zerolog.Logger
	unsubscribe func()
}

// NewHub subscribes to bus.
func NewHub(bus *state.Bus, buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	h := &Hub{
		clients: make(map[chan EventMessage]struct{}),
		buffer:  buffer,
		log:     log,
	}
	h.unsubscribe = bus.SubscribeAll(func(ev state.Event) {
		h.broadcast(NewEventMessage(ev))
	})
	return h
}

// Subscribe adds a client. The channel is closed when cancel is called, the
// client falls behind, or the hub closes.
func (h *Hub) Subscribe() (<-chan EventMessage, func()) {
	ch := make(chan EventMessage, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(ch) })
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every client and leaves the bus.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Hub) remove(ch chan EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Hub) broadcast(msg EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.log.Warn().Str("event", msg.Type).Msg("Stream client too slow, dropping it")
			delete(h.clients, ch)
			close(ch)
		}
	}
}
