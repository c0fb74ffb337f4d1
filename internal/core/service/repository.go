package service

import (
	"context"

	"github.com/yndnr/tokgate/internal/core/domain"
)

// SessionRepository persists sessions.
//
// Implementations must perform every state transition atomically per
// session id. Lookups return copies; callers may mutate them freely.
type SessionRepository interface {
	// Create inserts a new session. It fails with ErrSessionConflict when the
	// id or either token hash is already indexed.
	Create(ctx context.Context, s *domain.Session) error

	Get(ctx context.Context, id string) (*domain.Session, error)
	GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error)
	GetByAccessHash(ctx context.Context, hash string) (*domain.Session, error)

	// Rotate moves oldID from Active to Rotated (replaced_by = next.ID) and
	// inserts next, as one atomic step. When oldID is no longer Active it
	// returns ErrSessionStateConflict and next is not stored.
	Rotate(ctx context.Context, oldID string, next *domain.Session) error

	// Revoke marks one session Revoked. It reports false when the session
	// was already revoked.
	Revoke(ctx context.Context, id string, reason domain.RevokeReason, now int64) (bool, error)

	// RevokeAllByUser revokes every non-revoked session of userID and returns
	// how many changed state.
	RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, now int64) (int, error)

	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)

	// Sweep revokes Active sessions with expires_at <= now (reason expired)
	// and deletes non-active sessions last changed before purgeBefore.
	Sweep(ctx context.Context, now, purgeBefore int64) (SweepResult, error)
}

// SweepResult reports what a Sweep changed.
type SweepResult struct {
	Expired int `json:"expired"`
	Purged  int `json:"purged"`
}

// DeveloperRepository persists developers.
type DeveloperRepository interface {
	// Create fails with ErrAppIDTaken or ErrAPIKeyConflict on uniqueness
	// violations.
	Create(ctx context.Context, d *domain.Developer) error

	Get(ctx context.Context, id string) (*domain.Developer, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*domain.Developer, error)
	GetByClientID(ctx context.Context, clientID string) (*domain.Developer, error)
	List(ctx context.Context) ([]*domain.Developer, error)

	SetActive(ctx context.Context, id string, active bool) error

	// UpdateAPIKey replaces the key hash and hint. The old hash stops
	// resolving immediately.
	UpdateAPIKey(ctx context.Context, id, hash, hint string) error

	// TouchLastUsed advances last_used_at; it never moves it backwards.
	TouchLastUsed(ctx context.Context, id string, at int64) error
}

// UserRepository persists users.
type UserRepository interface {
	// Create fails with ErrEmailTaken when the email is registered.
	Create(ctx context.Context, u *domain.User) error

	Get(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	UpdateLastLogin(ctx context.Context, id string, at int64) error
	SetActive(ctx context.Context, id string, active bool) error
}
