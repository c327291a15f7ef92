package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// wireEvent is one JSON frame on the websocket: an event name plus its raw
// payload, decoded per event type.
type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Dialer opens websocket-backed channels against the restaurant backend's
// push endpoint. Reconnection is the dialer's own business: the Channel it
// returns stays valid across transport drops, subscribers just see a
// disconnect followed by a fresh connect once the re-dial succeeds.
type Dialer struct {
	// URL is the websocket endpoint, e.g. "wss://api.example.com/ws".
	URL string
	// Log receives transport diagnostics.
	Log zerolog.Logger
	// MinBackoff/MaxBackoff bound the reconnect delay. Zero values default
	// to 500ms and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// WS is the underlying websocket dialer; defaults to
	// websocket.DefaultDialer.
	WS *websocket.Dialer
}

// Open implements Opener. It returns immediately; dialing and reconnecting
// happen on a background goroutine that exits when the Channel is closed.
func (d *Dialer) Open(accessToken string) (*Channel, error) {
	ch := New(d.Log)
	go d.run(ch, accessToken)
	return ch, nil
}

func (d *Dialer) run(ch *Channel, accessToken string) {
	minB := d.MinBackoff
	if minB <= 0 {
		minB = 500 * time.Millisecond
	}
	maxB := d.MaxBackoff
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	wsd := d.WS
	if wsd == nil {
		wsd = websocket.DefaultDialer
	}

	backoff := minB
	for !ch.Closed() {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+accessToken)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		conn, _, err := wsd.DialContext(ctx, d.URL, header)
		cancel()
		if err != nil {
			d.Log.Warn().Err(err).Str("url", d.URL).Dur("retry_in", backoff).Msg("channel dial failed")
			if sleepUnlessClosed(ch, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxB)
			continue
		}

		backoff = minB
		ch.Publish(Event{Type: EventConnect})
		d.readLoop(ch, conn)
		ch.Publish(Event{Type: EventDisconnect})

		if sleepUnlessClosed(ch, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxB)
	}
}

// readLoop pumps frames from conn into the channel until the connection
// breaks or the channel is closed.
func (d *Dialer) readLoop(ch *Channel, conn *websocket.Conn) {
	defer conn.Close()
	for {
		if ch.Closed() {
			return
		}
		var frame wireEvent
		if err := conn.ReadJSON(&frame); err != nil {
			d.Log.Debug().Err(err).Msg("channel read ended")
			return
		}
		ev, ok := decodeFrame(frame)
		if !ok {
			d.Log.Warn().Str("event", frame.Event).Msg("unknown channel event")
			continue
		}
		ch.Publish(ev)
	}
}

// decodeFrame maps a wire frame onto an Event. Unknown event names and
// undecodable payloads are reported as not-ok and skipped; a bad frame must
// not kill the connection.
func decodeFrame(frame wireEvent) (Event, bool) {
	switch EventType(frame.Event) {
	case EventConnect:
		return Event{Type: EventConnect}, true
	case EventDisconnect:
		return Event{Type: EventDisconnect}, true
	case EventOrderUpdated:
		var o domain.OrderLine
		if err := json.Unmarshal(frame.Data, &o); err != nil {
			return Event{}, false
		}
		return Event{Type: EventOrderUpdated, Order: &o}, true
	case EventPaymentCompleted:
		var orders []domain.OrderLine
		if err := json.Unmarshal(frame.Data, &orders); err != nil {
			return Event{}, false
		}
		ev := Event{Type: EventPaymentCompleted, Orders: orders}
		// The payer rides on the settled orders themselves.
		if len(orders) > 0 && orders[0].Guest != nil {
			ev.Payer = orders[0].Guest
		}
		return ev, true
	}
	return Event{}, false
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleepUnlessClosed waits d, polling for channel closure so a Close during
// backoff stops the reconnect loop promptly. Reports whether ch closed.
func sleepUnlessClosed(ch *Channel, d time.Duration) bool {
	const step = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if ch.Closed() {
			return true
		}
		time.Sleep(step)
	}
	return ch.Closed()
}
