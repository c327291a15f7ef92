// Package repo implements the gateway's persistence layer. This file holds
// the session repository: the single current-session row committed by a
// successful bootstrap and read by anything needing authorization context.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// SaveSession commits s as the current session. Any previously committed
// session is superseded (soft-deleted) in the same transaction, keeping the
// invariant of at most one live session per gateway.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.Session{}).Error; err != nil {
			return err
		}
		return tx.Create(s).Error
	})
}

// CurrentSession returns the live session or ErrNotFound.
func CurrentSession(ctx context.Context, db *gorm.DB) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).Order("created_at DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession soft-deletes the current session (logout). Deleting when no
// session exists is a no-op, not an error.
func DeleteSession(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Where("1 = 1").Delete(&domain.Session{}).Error
}
