// Package upstream is the HTTP client for the restaurant backend. It covers
// the two outbound calls the gateway core needs: the one-shot credential
// exchange and the guest order-list fetch. Responses use the backend's
// standard envelope, a data payload plus a human-readable message.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// ExchangeError is a failed credential exchange. Message is the backend's
// human-readable explanation, safe to surface to the guest; Status is the
// HTTP status the backend answered with.
type ExchangeError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("credential exchange failed (HTTP %d): %s", e.Status, e.Message)
}

// UserMessage returns the display-safe message; empty when the backend gave
// none. The bootstrap falls back to its localized default then.
func (e *ExchangeError) UserMessage() string { return e.Message }

// Client calls the restaurant backend.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// New returns a Client for baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log,
	}
}

// envelope is the backend's standard response shape.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// PersistSession exchanges the credential pair for a server-side session.
// The backend may rotate the refresh token during this call, so callers
// must not repeat it; the bootstrap's guard latch enforces that.
func (c *Client) PersistSession(ctx context.Context, accessToken, refreshToken string) error {
	body, err := json.Marshal(map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/auth/token", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("exchange request: %w", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		env := decodeEnvelope(resp.Body)
		c.Log.Warn().Int("status", resp.StatusCode).Str("message", env.Message).Msg("credential exchange rejected")
		return &ExchangeError{Status: resp.StatusCode, Message: env.Message}
	}
	return nil
}

// OrderAPI is a Client bound to one access token; it satisfies the ledger's
// OrderSource contract.
type OrderAPI struct {
	client *Client
	token  string
}

// Authorized binds the client to an access token for guest API calls.
func (c *Client) Authorized(accessToken string) *OrderAPI {
	return &OrderAPI{client: c, token: accessToken}
}

// ListOrders fetches the guest's full current order list. Idempotent and
// re-invocable; the ledger leans on that for every resync.
func (a *OrderAPI) ListOrders(ctx context.Context) ([]domain.OrderLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.BaseURL+"/api/guest/orders", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order list request: %w", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		env := decodeEnvelope(resp.Body)
		return nil, fmt.Errorf("order list failed (HTTP %d): %s", resp.StatusCode, env.Message)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("order list decode: %w", err)
	}
	var orders []domain.OrderLine
	if err := json.Unmarshal(env.Data, &orders); err != nil {
		return nil, fmt.Errorf("order list decode: %w", err)
	}
	return orders, nil
}

// decodeEnvelope best-effort decodes an error body; a garbled body yields
// an empty envelope rather than a second error.
func decodeEnvelope(r io.Reader) envelope {
	var env envelope
	_ = json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&env)
	return env
}

// drainClose drains and closes a response body so the connection can be
// reused.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}
