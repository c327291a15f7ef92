package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// CreateAttempt records that a credential exchange was initiated for the
// given token fingerprint. Returns ErrDuplicate when a non-expired record
// already exists, which is how a redelivered redirect is detected after the
// in-memory latch is gone.
func CreateAttempt(ctx context.Context, db *gorm.DB, fingerprint string, ttl time.Duration) (*domain.BootstrapAttempt, error) {
	now := time.Now().UTC()
	rec := &domain.BootstrapAttempt{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredAttempts removes attempt records whose TTL has passed. Tokens
// expire upstream long before their attempt records do, so an expired row
// can never gate a live credential pair.
func PurgeExpiredAttempts(ctx context.Context, db *gorm.DB, now time.Time) error {
	return db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.BootstrapAttempt{}).Error
}
