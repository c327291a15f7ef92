// Package notify defines the notification relay contract and the localized
// message catalog used for user-facing messages. The relay is a fire-and-
// forget collaborator: the gateway hands it a display string and moves on.
// Delivery mechanics (toast, push, websocket back to the UI) live elsewhere.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Relay accepts a message for display to the guest. Implementations must be
// fire-and-forget: Notify never blocks the caller on delivery and never
// returns an error, because nothing in the core can act on a failed toast.
type Relay interface {
	Notify(ctx context.Context, message string)
}

// LogRelay is the default Relay: it writes each message to the structured
// log. Useful as a stand-in during development and as the tail relay in
// deployments where the UI polls for messages instead of receiving pushes.
type LogRelay struct {
	Log zerolog.Logger
}

// Notify implements Relay.
func (r LogRelay) Notify(ctx context.Context, message string) {
	r.Log.Info().Str("message", message).Msg("notify")
}

// Func adapts a plain function to the Relay interface.
type Func func(ctx context.Context, message string)

// Notify implements Relay.
func (f Func) Notify(ctx context.Context, message string) { f(ctx, message) }
