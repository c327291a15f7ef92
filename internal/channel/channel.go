// Package channel implements the live event channel between the restaurant
// backend and the gateway: a reconnecting duplex push transport delivering
// named events (connect, disconnect, order-updated, payment-completed).
//
// Delivery guarantees are deliberately weak, and subscribers must be written
// for that: an event may arrive twice, late, out of order relative to other
// orders, or not at all. The ledger's full-replace merge policy is what
// makes this tolerable. What the channel does guarantee:
//
//   - Handlers never run concurrently. Publication is serialized, so a
//     subscriber sees one event at a time, run to completion.
//   - Events published while a handler is suspended in a boundary call are
//     queued behind the dispatch lock, never dropped by the channel itself.
//   - The same *Channel value survives transport reconnects; a fresh
//     "connect" event is replayed to current subscribers after each re-dial.
package channel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/metrics"
)

// EventType names a channel event.
type EventType string

// The closed set of events the backend pushes.
const (
	EventConnect          EventType = "connect"
	EventDisconnect       EventType = "disconnect"
	EventOrderUpdated     EventType = "order-updated"
	EventPaymentCompleted EventType = "payment-completed"
)

// Event is one delivery. Order is set for order-updated; Orders and Payer
// for payment-completed; lifecycle events carry no payload.
type Event struct {
	Type   EventType
	Order  *domain.OrderLine
	Orders []domain.OrderLine
	Payer  *domain.Guest
}

// Handlers is the set of callbacks a subscriber registers. Nil entries are
// skipped. Handlers run on the publisher's goroutine, one at a time.
type Handlers struct {
	OnConnect          func()
	OnDisconnect       func()
	OnOrderUpdated     func(domain.OrderLine)
	OnPaymentCompleted func(orders []domain.OrderLine, payer domain.Guest)
}

// Channel is a live event channel handle. At most one Channel should exist
// per session; the bootstrap enforces that by being the only opener.
type Channel struct {
	log zerolog.Logger

	mu     sync.Mutex // guards subs, nextID, closed
	subs   map[uint64]Handlers
	nextID uint64
	closed bool

	// dispatchMu serializes handler execution across publishers, so a
	// subscriber never observes two events concurrently. A publish issued
	// while a handler is still running waits here: queued, not dropped.
	dispatchMu sync.Mutex
}

// New returns an unconnected Channel. Transports (Hub, Dialer) publish into
// it; subscribers attach via Subscribe.
func New(log zerolog.Logger) *Channel {
	return &Channel{
		log:  log,
		subs: make(map[uint64]Handlers),
	}
}

// Subscription is the disposable handle returned by Subscribe. Cancel
// detaches the handlers; cancelling twice is safe.
type Subscription struct {
	ch   *Channel
	id   uint64
	once sync.Once
}

// Cancel removes the subscription's handlers from the channel. After Cancel
// returns, no further events are delivered to them (an in-flight delivery
// may still complete).
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.ch.mu.Lock()
		delete(s.ch.subs, s.id)
		s.ch.mu.Unlock()
	})
}

// Subscribe registers h and returns its handle. Each call creates an
// independent subscription; callers that must not double-apply events are
// responsible for cancelling their previous handle first.
func (c *Channel) Subscribe(h Handlers) *Subscription {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = h
	c.mu.Unlock()
	return &Subscription{ch: c, id: id}
}

// Publish delivers ev to every current subscriber, in subscription order,
// run to completion before the next publish proceeds. Publishing on a
// closed channel is a no-op.
func (c *Channel) Publish(ev Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	// Map order is random; deliver in subscription order.
	sortIDs(ids)
	handlers := make([]Handlers, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.subs[id])
	}
	c.mu.Unlock()

	metrics.ChannelEvents.WithLabelValues(string(ev.Type)).Inc()

	for _, h := range handlers {
		deliver(h, ev)
	}
}

// Close marks the channel closed. Subsequent publishes are dropped and
// transports observing the channel stop reconnecting. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[uint64]Handlers)
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func deliver(h Handlers, ev Event) {
	switch ev.Type {
	case EventConnect:
		if h.OnConnect != nil {
			h.OnConnect()
		}
	case EventDisconnect:
		if h.OnDisconnect != nil {
			h.OnDisconnect()
		}
	case EventOrderUpdated:
		if h.OnOrderUpdated != nil && ev.Order != nil {
			h.OnOrderUpdated(*ev.Order)
		}
	case EventPaymentCompleted:
		if h.OnPaymentCompleted != nil {
			var payer domain.Guest
			if ev.Payer != nil {
				payer = *ev.Payer
			}
			h.OnPaymentCompleted(ev.Orders, payer)
		}
	}
}

// sortIDs is a tiny insertion sort; subscriber counts are single digits.
func sortIDs(ids []uint64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// Opener opens a live channel scoped to an access token. Implemented by Hub
// (in-process) and Dialer (websocket); the bootstrap depends only on this.
type Opener interface {
	Open(accessToken string) (*Channel, error)
}
