package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.SessionRepository = (*SessionStore)(nil)

// SessionStore stores sessions in PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

const sessionColumns = `
	id, user_id, access_token_hash, refresh_token_hash,
	access_expires_at, expires_at, device, ip_address,
	state, replaced_by, revoke_reason,
	created_at, last_used_at, updated_at, version`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.AccessExpiresAt, &s.ExpiresAt, &s.Device, &s.IPAddress,
		&s.State, &s.ReplacedBy, &s.RevokeReason,
		&s.CreatedAt, &s.LastUsedAt, &s.UpdatedAt, &s.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSession(ctx context.Context, db execer, s *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO tokgate_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		s.ID, s.UserID, s.AccessTokenHash, s.RefreshTokenHash,
		s.AccessExpiresAt, s.ExpiresAt, s.Device, s.IPAddress,
		string(s.State), s.ReplacedBy, string(s.RevokeReason),
		s.CreatedAt, s.LastUsedAt, s.UpdatedAt, int64(s.Version),
	)
	if _, ok := uniqueViolation(err); ok {
		return domain.ErrSessionConflict
	}
	return err
}

// Create inserts a new session.
func (st *SessionStore) Create(ctx context.Context, s *domain.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return insertSession(ctx, st.pool, s)
}

func (st *SessionStore) getWhere(ctx context.Context, where string, arg any) (*domain.Session, error) {
	return scanSession(st.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM tokgate_sessions WHERE `+where, arg))
}

// Get retrieves a session by ID.
func (st *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	return st.getWhere(ctx, "id = $1", id)
}

// GetByRefreshHash retrieves a session by refresh token hash.
func (st *SessionStore) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	return st.getWhere(ctx, "refresh_token_hash = $1", hash)
}

// GetByAccessHash retrieves a session by access token hash.
func (st *SessionStore) GetByAccessHash(ctx context.Context, hash string) (*domain.Session, error) {
	return st.getWhere(ctx, "access_token_hash = $1", hash)
}

// Rotate retires oldID and inserts next in one transaction.
func (st *SessionStore) Rotate(ctx context.Context, oldID string, next *domain.Session) error {
	if err := next.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, st.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tokgate_sessions
			SET state = 'rotated',
			    replaced_by = $2,
			    revoke_reason = 'rotation',
			    last_used_at = $3,
			    updated_at = $3,
			    version = version + 1
			WHERE id = $1 AND state = 'active'
		`, oldID, next.ID, next.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var found bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM tokgate_sessions WHERE id = $1)`, oldID).Scan(&found); err != nil {
				return err
			}
			if !found {
				return domain.ErrSessionNotFound
			}
			return domain.ErrSessionStateConflict
		}
		return insertSession(ctx, tx, next)
	})
}

// Revoke marks one session Revoked.
func (st *SessionStore) Revoke(ctx context.Context, id string, reason domain.RevokeReason, now int64) (bool, error) {
	tag, err := st.pool.Exec(ctx, `
		UPDATE tokgate_sessions
		SET state = 'revoked', revoke_reason = $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND state <> 'revoked'
	`, id, string(reason), now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var found bool
	if err := st.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tokgate_sessions WHERE id = $1)`, id).Scan(&found); err != nil {
		return false, err
	}
	if !found {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}

// RevokeAllByUser revokes every non-revoked session of a user in one
// statement.
func (st *SessionStore) RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, now int64) (int, error) {
	tag, err := st.pool.Exec(ctx, `
		UPDATE tokgate_sessions
		SET state = 'revoked', revoke_reason = $2, updated_at = $3, version = version + 1
		WHERE user_id = $1 AND state <> 'revoked'
	`, userID, string(reason), now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListByUser returns a user's sessions, newest first.
func (st *SessionStore) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := st.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM tokgate_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Sweep expires and purges sessions.
func (st *SessionStore) Sweep(ctx context.Context, now, purgeBefore int64) (service.SweepResult, error) {
	var res service.SweepResult

	tag, err := st.pool.Exec(ctx, `
		UPDATE tokgate_sessions
		SET state = 'revoked', revoke_reason = 'expired', updated_at = $1, version = version + 1
		WHERE state = 'active' AND expires_at <= $1
	`, now)
	if err != nil {
		return res, err
	}
	res.Expired = int(tag.RowsAffected())

	tag, err = st.pool.Exec(ctx, `
		DELETE FROM tokgate_sessions
		WHERE state <> 'active' AND updated_at < $1
	`, purgeBefore)
	if err != nil {
		return res, err
	}
	res.Purged = int(tag.RowsAffected())
	return res, nil
}
