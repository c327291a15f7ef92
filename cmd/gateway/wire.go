// Adapters binding the repository free functions and the upstream client to
// the interfaces consumed by the bootstrap machine and the order ledger.
package main

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-order-gateway/internal/bootstrap"
	"github.com/tbourn/go-order-gateway/internal/domain"
	"github.com/tbourn/go-order-gateway/internal/repo"
	"github.com/tbourn/go-order-gateway/internal/upstream"
)

// orderSource lists orders with the live session's access token. The token
// is re-read per call so a superseded session never leaks a stale bearer.
type orderSource struct {
	client *upstream.Client
	db     *gorm.DB
}

func (s orderSource) ListOrders(ctx context.Context) ([]domain.OrderLine, error) {
	sess, err := repo.CurrentSession(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return s.client.Authorized(sess.AccessToken).ListOrders(ctx)
}

// sessionStore proxies repo.SaveSession.
type sessionStore struct {
	db *gorm.DB
}

func (s sessionStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	return repo.SaveSession(ctx, s.db, sess)
}

// attemptStore proxies repo.CreateAttempt, mapping duplicate fingerprints to
// the bootstrap replay sentinel.
type attemptStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s attemptStore) RecordAttempt(ctx context.Context, fingerprint string) error {
	_, err := repo.CreateAttempt(ctx, s.db, fingerprint, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return bootstrap.ErrReplayed
	}
	return err
}
