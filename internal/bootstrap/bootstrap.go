// Package bootstrap implements the one-shot session bootstrap: the exchange
// of externally issued credentials, delivered by an out-of-band redirect,
// for a persisted application session plus a live event channel.
//
// The triggering redirect is not guaranteed to arrive exactly once. Browsers
// reload, proxies retry, users double-click; yet the exchange may rotate the
// refresh token server-side, so it is not safe to repeat. The guard latch
// here is therefore mandatory, not an optimization: across N invocations,
// exactly one exchange is attempted, exactly one terminal transition
// happens, and at most one failure notification is shown.
package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/channel"
	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/metrics"
	"github.com/tbourn/go-order-gateway/internal/notify"
	"github.com/tbourn/go-order-gateway/internal/token"
)

// State is the bootstrap state machine position. Authenticated and Failed
// are terminal; once the latch trips the machine never leaves them.
type State int

// Bootstrap states.
const (
	StateIdle State = iota
	StateExchanging
	StateAuthenticated
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Credentials is the pair delivered by the redirect, plus the optional
// upstream failure message. Absence of both tokens is a valid input: it
// means authentication already failed upstream.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Message      string
}

// Exchanger performs the credential exchange against the backend. The call
// must be treated as non-idempotent; Run guarantees it happens at most once
// per latch trip.
type Exchanger interface {
	PersistSession(ctx context.Context, accessToken, refreshToken string) error
}

// userMessager is implemented by exchange errors that carry a message safe
// to display to the guest (see upstream.ExchangeError).
type userMessager interface {
	UserMessage() string
}

// SessionStore commits the exchanged session to durable state.
type SessionStore interface {
	SaveSession(ctx context.Context, s *domain.Session) error
}

// AttemptStore records tripped exchanges by token fingerprint so a replayed
// redirect stays a no-op after a restart. RecordAttempt returns
// ErrReplayed when the fingerprint was already recorded.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, fingerprint string) error
}

// ErrReplayed is returned by AttemptStore implementations when the same
// credential pair was already exchanged by an earlier process.
var ErrReplayed = errors.New("bootstrap already performed for these credentials")

// Result reports what a Run invocation observed. Channel and Role are set
// only on the invocation that actually authenticated; replayed invocations
// see the terminal state with zero-valued effects.
type Result struct {
	State      State
	Role       domain.RoleClaim
	Channel    *channel.Channel
	RedirectTo string
}

// Bootstrap drives one session bootstrap. The zero value is not usable;
// populate the collaborator fields. Exactly one Bootstrap exists per
// credential delivery.
type Bootstrap struct {
	Exchanger Exchanger
	Sessions  SessionStore
	Attempts  AttemptStore // optional; nil disables cross-restart dedup
	Opener    channel.Opener
	Relay     notify.Relay
	Msgs      *notify.Catalog
	Log       zerolog.Logger

	// DashboardPath is where a successful bootstrap navigates to.
	// Defaults to "/manage/dashboard".
	DashboardPath string

	mu      sync.Mutex
	tripped bool
	state   State
}

// State returns the current machine state.
func (b *Bootstrap) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Run consumes one credential delivery. The first invocation trips the
// latch and performs the full effect chain; every later invocation is a
// no-op that reports the terminal state. Errors never escape: each failure
// mode degrades to one user-visible notification and a Failed state.
func (b *Bootstrap) Run(ctx context.Context, creds Credentials) Result {
	b.mu.Lock()
	if b.tripped {
		state := b.state
		b.mu.Unlock()
		metrics.BootstrapOutcomes.WithLabelValues("replayed").Inc()
		return Result{State: state, RedirectTo: b.redirectFor(state)}
	}
	// Check-and-set before any suspension point: re-entrant invocations
	// arriving while the exchange is in flight must not re-trigger it.
	b.tripped = true
	b.state = StateExchanging
	b.mu.Unlock()

	res := b.perform(ctx, creds)

	b.mu.Lock()
	b.state = res.State
	b.mu.Unlock()
	return res
}

func (b *Bootstrap) perform(ctx context.Context, creds Credentials) Result {
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		// Expected failure path: upstream authentication already failed
		// and the redirect carries only a message.
		b.notifyOnce(ctx, creds.Message)
		metrics.BootstrapOutcomes.WithLabelValues("missing_credentials").Inc()
		return Result{State: StateFailed}
	}

	role, err := token.DecodeRole(creds.AccessToken)
	if err != nil {
		b.Log.Warn().Err(err).Msg("bootstrap: undecodable access token")
		b.notifyOnce(ctx, "")
		metrics.BootstrapOutcomes.WithLabelValues("malformed_token").Inc()
		return Result{State: StateFailed}
	}

	if b.Attempts != nil {
		err := b.Attempts.RecordAttempt(ctx, Fingerprint(creds.AccessToken))
		if errors.Is(err, ErrReplayed) {
			// A previous process already exchanged this pair; stay silent,
			// the guest already saw the outcome.
			b.Log.Info().Msg("bootstrap: replayed credential pair, skipping exchange")
			metrics.BootstrapOutcomes.WithLabelValues("replayed").Inc()
			return Result{State: StateFailed}
		}
		if err != nil {
			// The in-memory latch still guarantees in-process exactly-once;
			// losing cross-restart dedup is not worth failing the login.
			b.Log.Error().Err(err).Msg("bootstrap: attempt record failed, continuing")
		}
	}

	if err := b.Exchanger.PersistSession(ctx, creds.AccessToken, creds.RefreshToken); err != nil {
		b.Log.Warn().Err(err).Msg("bootstrap: credential exchange failed")
		var um userMessager
		msg := ""
		if errors.As(err, &um) {
			msg = um.UserMessage()
		}
		b.notifyOnce(ctx, msg)
		metrics.BootstrapOutcomes.WithLabelValues("exchange_failed").Inc()
		return Result{State: StateFailed}
	}

	session := &domain.Session{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Role:         role,
	}
	if err := b.Sessions.SaveSession(ctx, session); err != nil {
		b.Log.Error().Err(err).Msg("bootstrap: session commit failed")
		b.notifyOnce(ctx, "")
		metrics.BootstrapOutcomes.WithLabelValues("exchange_failed").Inc()
		return Result{State: StateFailed}
	}

	ch, err := b.Opener.Open(creds.AccessToken)
	if err != nil {
		b.Log.Error().Err(err).Msg("bootstrap: channel open failed")
		b.notifyOnce(ctx, "")
		metrics.BootstrapOutcomes.WithLabelValues("exchange_failed").Inc()
		return Result{State: StateFailed}
	}

	b.Log.Info().Str("role", string(role)).Msg("bootstrap: authenticated")
	metrics.BootstrapOutcomes.WithLabelValues("authenticated").Inc()
	return Result{
		State:      StateAuthenticated,
		Role:       role,
		Channel:    ch,
		RedirectTo: b.redirectFor(StateAuthenticated),
	}
}

// notifyOnce surfaces msg, or the localized default when msg is empty. The
// latch makes "once" hold across invocations; this helper just centralizes
// the default.
func (b *Bootstrap) notifyOnce(ctx context.Context, msg string) {
	if msg == "" {
		msg = b.Msgs.GenericFailure()
	}
	b.Relay.Notify(ctx, msg)
}

func (b *Bootstrap) redirectFor(state State) string {
	if state != StateAuthenticated {
		return ""
	}
	if b.DashboardPath != "" {
		return b.DashboardPath
	}
	return "/manage/dashboard"
}

// Fingerprint derives the attempt-store key for an access token. The raw
// token never reaches the database.
func Fingerprint(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}
