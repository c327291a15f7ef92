package channel

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrChannelOpen is returned when a second live channel is requested for a
// token that already has one. Duplicate opens would double-deliver every
// event to anything subscribed to both, so the hub refuses.
var ErrChannelOpen = errors.New("channel already open for this token")

// Hub is an in-process channel transport. It hands out one Channel per
// access token and lets the owning process emit events into them directly.
// It backs tests and single-binary deployments where the pusher and the
// ledger live in the same process.
type Hub struct {
	log zerolog.Logger

	mu       sync.Mutex
	channels map[string]*Channel
}

// NewHub returns an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log,
		channels: make(map[string]*Channel),
	}
}

// Open implements Opener. At most one live channel exists per token; a
// closed channel's slot is reclaimed on the next Open.
func (h *Hub) Open(accessToken string) (*Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.channels[accessToken]; ok && !existing.Closed() {
		return nil, ErrChannelOpen
	}
	ch := New(h.log)
	h.channels[accessToken] = ch
	ch.Publish(Event{Type: EventConnect})
	return ch, nil
}

// Emit publishes ev on the channel opened for accessToken, if any.
func (h *Hub) Emit(accessToken string, ev Event) {
	h.mu.Lock()
	ch := h.channels[accessToken]
	h.mu.Unlock()
	if ch != nil {
		ch.Publish(ev)
	}
}

// Broadcast publishes ev on every open channel.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	chans := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		chans = append(chans, ch)
	}
	h.mu.Unlock()
	for _, ch := range chans {
		ch.Publish(ev)
	}
}
