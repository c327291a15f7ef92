// OAuth callback handler.
//
// This file terminates the provider redirect:
//   - GET /auth/oauth/callback?accessToken=...&refreshToken=...&message=...
//
// The handler is transport-thin: it lifts the credential pair out of the
// query string, hands it to the bootstrap state machine, and translates the
// outcome into either a 303 redirect to the dashboard or a structured error.
// The state machine owns all exactly-once guarantees; the handler may be hit
// any number of times for the same redirect without side effects.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-order-gateway/internal/bootstrap"
	"github.com/tbourn/go-order-gateway/internal/channel"
	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/http/middleware"
)

//
// Service contracts (context-aware)
//

// SessionBootstrapper runs the exactly-once credential exchange.
//
// Implementations must be safe for concurrent use: simultaneous callback
// hits for the same redirect are expected and only one may exchange.
type SessionBootstrapper interface {
	// Run consumes one credential delivery and reports the terminal outcome.
	Run(ctx context.Context, creds bootstrap.Credentials) bootstrap.Result
}

// OrderBook is the live order projection consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type OrderBook interface {
	// Attach binds the projection to a live event channel and primes it.
	Attach(ctx context.Context, ch *channel.Channel) error
	// Resync refetches the full order set from the source of truth.
	Resync(ctx context.Context) error
	// Snapshot returns the current orders and their derived totals.
	Snapshot() ([]domain.OrderLine, domain.Aggregate)
}

// SessionProvider exposes the persisted session for read endpoints.
type SessionProvider interface {
	// Current returns the single live session, or an error when none exists.
	Current(ctx context.Context) (*domain.Session, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for the OAuth callback, orders, and session
// introspection. It depends on abstract contracts to keep transport concerns
// separate from the bootstrap and projection logic.
type Handlers struct {
	boot     SessionBootstrapper
	book     OrderBook
	sessions SessionProvider
}

// New constructs a Handlers instance bound to the given collaborators.
func New(boot SessionBootstrapper, book OrderBook, sessions SessionProvider) *Handlers {
	return &Handlers{boot: boot, book: book, sessions: sessions}
}

// OAuthCallback handles GET /auth/oauth/callback.
//
// Outcomes:
//   - first successful delivery: channel attached to the order book,
//     303 See Other to the dashboard
//   - replayed delivery after success: 303 See Other (idempotent navigation)
//   - replay while the exchange is still in flight: 409 with
//     bootstrap_replayed
//   - failed bootstrap (missing/malformed credentials, exchange error):
//     401 with bootstrap_failed; user messaging already went through the
//     notification relay
func (h *Handlers) OAuthCallback(c *gin.Context) {
	creds := bootstrap.Credentials{
		AccessToken:  c.Query("accessToken"),
		RefreshToken: c.Query("refreshToken"),
		Message:      c.Query("message"),
	}

	res := h.boot.Run(c.Request.Context(), creds)

	switch res.State {
	case bootstrap.StateAuthenticated:
		if res.Channel != nil {
			// First authenticated delivery carries the live channel.
			// Attach errors are not fatal: the session exists and the
			// projection recovers on the next resync.
			if err := h.book.Attach(c.Request.Context(), res.Channel); err != nil {
				middleware.LoggerFrom(c).Error().Err(err).Msg("order book attach failed")
			}
		}
		c.Redirect(http.StatusSeeOther, res.RedirectTo)
	case bootstrap.StateExchanging:
		fail(c, http.StatusConflict, ErrCodeBootstrapReplayed, "bootstrap already in progress")
	default:
		fail(c, http.StatusUnauthorized, ErrCodeBootstrapFailed, "session bootstrap failed")
	}
}

// Session handles GET /api/v1/session. It reports the role and age of the
// live session, or 404 when no session has been established yet.
func (h *Handlers) Session(c *gin.Context) {
	s, err := h.sessions.Current(c.Request.Context())
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNoSession, "no active session")
		return
	}
	ok(c, http.StatusOK, SessionResponse{
		Role:      string(s.Role),
		CreatedAt: s.CreatedAt,
	})
}
