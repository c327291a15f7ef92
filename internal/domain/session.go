// Package domain defines the persistence models of the gateway. These types
// are mapped with GORM; the session row is the single source of truth for
// the authenticated guest, and bootstrap attempts record tripped exchanges
// so a replayed OAuth redirect stays a no-op across restarts.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Session is the application session produced by a successful credential
// exchange. At most one live session exists per gateway process; committing
// a new one supersedes the previous row.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - AccessToken / RefreshToken: the externally issued credential pair,
//     stored verbatim. The gateway never mutates them.
//   - Role: role claim decoded from the access token at bootstrap time.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker; logout soft-deletes the row.
type Session struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	AccessToken  string         `json:"-"             gorm:"type:text;not null"`
	RefreshToken string         `json:"-"             gorm:"type:text;not null"`
	Role         RoleClaim      `json:"role"          gorm:"type:varchar(16);not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// BootstrapAttempt records that a credential exchange was performed for a
// given token fingerprint. The unique index makes a redelivered redirect
// (browser reload, duplicate navigation) detectable after a restart, when
// the in-memory bootstrap latch no longer remembers it.
type BootstrapAttempt struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Fingerprint string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_attempt_fingerprint"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (BootstrapAttempt) TableName() string { return "bootstrap_attempts" }
