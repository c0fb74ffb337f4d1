package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.UserRepository = (*UserStore)(nil)

// UserStore stores users in PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

const userColumns = `id, username, email, password_hash, active, created_at, last_login_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create stores a new user.
func (st *UserStore) Create(ctx context.Context, u *domain.User) error {
	_, err := st.pool.Exec(ctx, `
		INSERT INTO tokgate_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Active, u.CreatedAt, u.LastLoginAt)
	if constraint, ok := uniqueViolation(err); ok && constraint == "uq_users_email" {
		return domain.ErrEmailTaken
	}
	return err
}

// Get retrieves a user by ID.
func (st *UserStore) Get(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(st.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM tokgate_users WHERE id = $1`, id))
}

// GetByEmail retrieves a user by normalized email.
func (st *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(st.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM tokgate_users WHERE email = $1`, domain.NormalizeEmail(email)))
}

func (st *UserStore) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := st.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin records a successful login.
func (st *UserStore) UpdateLastLogin(ctx context.Context, id string, at int64) error {
	return st.execOne(ctx, `UPDATE tokgate_users SET last_login_at = $2 WHERE id = $1`, id, at)
}

// SetActive enables or disables a user.
func (st *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	return st.execOne(ctx, `UPDATE tokgate_users SET active = $2 WHERE id = $1`, id, active)
}
