package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/channel"
	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/notify"
)

func guestToken(t *testing.T) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := enc.EncodeToString([]byte(`{"role":"Guest"}`))
	return fmt.Sprintf("%s.%s.sig", header, body)
}

type fakeExchanger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeExchanger) PersistSession(ctx context.Context, access, refresh string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

func (e *fakeExchanger) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeSessions struct {
	mu    sync.Mutex
	saved []*domain.Session
	err   error
}

func (s *fakeSessions) SaveSession(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, sess)
	return nil
}

type fakeRelay struct {
	mu       sync.Mutex
	messages []string
}

func (r *fakeRelay) Notify(ctx context.Context, message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

type fakeAttempts struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (a *fakeAttempts) RecordAttempt(ctx context.Context, fingerprint string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.seen == nil {
		a.seen = make(map[string]bool)
	}
	if a.seen[fingerprint] {
		return ErrReplayed
	}
	a.seen[fingerprint] = true
	return nil
}

func newBootstrap(exch *fakeExchanger, sessions *fakeSessions, relay *fakeRelay) *Bootstrap {
	return &Bootstrap{
		Exchanger: exch,
		Sessions:  sessions,
		Opener:    channel.NewHub(zerolog.Nop()),
		Relay:     relay,
		Msgs:      notify.NewCatalog("vi"),
		Log:       zerolog.Nop(),
	}
}

func TestRun_ExactlyOnceAcrossRepeats(t *testing.T) {
	exch := &fakeExchanger{}
	sessions := &fakeSessions{}
	relay := &fakeRelay{}
	b := newBootstrap(exch, sessions, relay)

	creds := Credentials{AccessToken: guestToken(t), RefreshToken: "r1"}
	first := b.Run(context.Background(), creds)
	if first.State != StateAuthenticated {
		t.Fatalf("first run state = %s, want authenticated", first.State)
	}
	if first.Channel == nil {
		t.Fatal("first run returned no channel")
	}
	if first.Role != domain.RoleGuest {
		t.Fatalf("role = %q, want Guest", first.Role)
	}
	if first.RedirectTo != "/manage/dashboard" {
		t.Fatalf("redirect = %q", first.RedirectTo)
	}

	for i := 0; i < 5; i++ {
		res := b.Run(context.Background(), creds)
		if res.State != StateAuthenticated {
			t.Fatalf("replay %d state = %s", i, res.State)
		}
		if res.Channel != nil {
			t.Fatalf("replay %d produced a channel", i)
		}
	}

	if exch.callCount() != 1 {
		t.Fatalf("exchange calls = %d, want 1", exch.callCount())
	}
	if len(sessions.saved) != 1 {
		t.Fatalf("sessions committed = %d, want 1", len(sessions.saved))
	}
	if len(relay.messages) != 0 {
		t.Fatalf("unexpected notifications: %v", relay.messages)
	}
}

func TestRun_MissingCredentialsNotifiesOnce(t *testing.T) {
	exch := &fakeExchanger{}
	relay := &fakeRelay{}
	b := newBootstrap(exch, &fakeSessions{}, relay)

	creds := Credentials{Message: "Tài khoản bị khóa"}
	for i := 0; i < 4; i++ {
		res := b.Run(context.Background(), creds)
		if res.State != StateFailed {
			t.Fatalf("run %d state = %s, want failed", i, res.State)
		}
	}

	if exch.callCount() != 0 {
		t.Fatalf("exchange attempted with no credentials: %d calls", exch.callCount())
	}
	if len(relay.messages) != 1 {
		t.Fatalf("notify count = %d, want 1 (%v)", len(relay.messages), relay.messages)
	}
	if relay.messages[0] != "Tài khoản bị khóa" {
		t.Fatalf("message = %q, want the redirect-provided one", relay.messages[0])
	}
}

func TestRun_MissingCredentialsDefaultMessage(t *testing.T) {
	relay := &fakeRelay{}
	b := newBootstrap(&fakeExchanger{}, &fakeSessions{}, relay)

	b.Run(context.Background(), Credentials{})
	if len(relay.messages) != 1 || relay.messages[0] != "Có lỗi xảy ra" {
		t.Fatalf("messages = %v, want one localized default", relay.messages)
	}
}

type messagedError struct{ msg string }

func (e *messagedError) Error() string       { return e.msg }
func (e *messagedError) UserMessage() string { return e.msg }

func TestRun_ExchangeFailure(t *testing.T) {
	exch := &fakeExchanger{err: &messagedError{msg: "Refresh token đã hết hạn"}}
	sessions := &fakeSessions{}
	relay := &fakeRelay{}
	b := newBootstrap(exch, sessions, relay)

	res := b.Run(context.Background(), Credentials{AccessToken: guestToken(t), RefreshToken: "r1"})
	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if res.Channel != nil {
		t.Fatal("channel opened despite exchange failure")
	}
	if len(sessions.saved) != 0 {
		t.Fatal("session committed despite exchange failure")
	}
	if len(relay.messages) != 1 || relay.messages[0] != "Refresh token đã hết hạn" {
		t.Fatalf("messages = %v, want the exchange error message", relay.messages)
	}

	// Replays after failure stay silent.
	b.Run(context.Background(), Credentials{AccessToken: guestToken(t), RefreshToken: "r1"})
	if exch.callCount() != 1 || len(relay.messages) != 1 {
		t.Fatalf("replay re-triggered effects: %d calls, %v", exch.callCount(), relay.messages)
	}
}

func TestRun_ExchangeFailureWithoutUserMessage(t *testing.T) {
	exch := &fakeExchanger{err: errors.New("dial tcp: connection refused")}
	relay := &fakeRelay{}
	b := newBootstrap(exch, &fakeSessions{}, relay)

	b.Run(context.Background(), Credentials{AccessToken: guestToken(t), RefreshToken: "r1"})
	if len(relay.messages) != 1 || relay.messages[0] != "Có lỗi xảy ra" {
		t.Fatalf("messages = %v, want localized default", relay.messages)
	}
}

func TestRun_MalformedTokenFailsWithoutExchange(t *testing.T) {
	exch := &fakeExchanger{}
	relay := &fakeRelay{}
	b := newBootstrap(exch, &fakeSessions{}, relay)

	res := b.Run(context.Background(), Credentials{AccessToken: "not-a-jwt", RefreshToken: "r1"})
	if res.State != StateFailed {
		t.Fatalf("state = %s, want failed", res.State)
	}
	if exch.callCount() != 0 {
		t.Fatal("exchange attempted with undecodable token")
	}
	if len(relay.messages) != 1 {
		t.Fatalf("notify count = %d, want 1", len(relay.messages))
	}
}

func TestRun_AttemptStoreDetectsCrossProcessReplay(t *testing.T) {
	attempts := &fakeAttempts{}
	tok := guestToken(t)

	// First "process" performs the exchange.
	exch1 := &fakeExchanger{}
	b1 := newBootstrap(exch1, &fakeSessions{}, &fakeRelay{})
	b1.Attempts = attempts
	if res := b1.Run(context.Background(), Credentials{AccessToken: tok, RefreshToken: "r1"}); res.State != StateAuthenticated {
		t.Fatalf("first process state = %s", res.State)
	}

	// A fresh Bootstrap (fresh latch) sees the replay via the store.
	exch2 := &fakeExchanger{}
	relay2 := &fakeRelay{}
	b2 := newBootstrap(exch2, &fakeSessions{}, relay2)
	b2.Attempts = attempts
	res := b2.Run(context.Background(), Credentials{AccessToken: tok, RefreshToken: "r1"})
	if res.State != StateFailed {
		t.Fatalf("replayed state = %s, want failed", res.State)
	}
	if exch2.callCount() != 0 {
		t.Fatal("replayed credentials were exchanged again")
	}
	if len(relay2.messages) != 0 {
		t.Fatalf("replay notified: %v", relay2.messages)
	}
}

func TestRun_AttemptStoreErrorDoesNotBlockLogin(t *testing.T) {
	exch := &fakeExchanger{}
	b := newBootstrap(exch, &fakeSessions{}, &fakeRelay{})
	b.Attempts = &fakeAttempts{err: errors.New("disk full")}

	res := b.Run(context.Background(), Credentials{AccessToken: guestToken(t), RefreshToken: "r1"})
	if res.State != StateAuthenticated {
		t.Fatalf("state = %s, want authenticated despite store error", res.State)
	}
	if exch.callCount() != 1 {
		t.Fatalf("exchange calls = %d, want 1", exch.callCount())
	}
}

func TestRun_ConcurrentInvocations(t *testing.T) {
	exch := &fakeExchanger{}
	b := newBootstrap(exch, &fakeSessions{}, &fakeRelay{})
	creds := Credentials{AccessToken: guestToken(t), RefreshToken: "r1"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(context.Background(), creds)
		}()
	}
	wg.Wait()

	if exch.callCount() != 1 {
		t.Fatalf("exchange calls = %d, want 1", exch.callCount())
	}
	if b.State() != StateAuthenticated {
		t.Fatalf("final state = %s", b.State())
	}
}

func TestState_Strings(t *testing.T) {
	want := map[State]string{
		StateIdle:          "idle",
		StateExchanging:    "exchanging",
		StateAuthenticated: "authenticated",
		StateFailed:        "failed",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}
