package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
)

var _ service.DeveloperRepository = (*DeveloperStore)(nil)

// DeveloperStore stores developers in PostgreSQL.
type DeveloperStore struct {
	pool *pgxpool.Pool
}

const developerColumns = `
	id, app_id, client_id, client_secret_hash, api_key_hash, api_key_hint,
	rate_limit, active, created_at, last_used_at`

func scanDeveloper(row pgx.Row) (*domain.Developer, error) {
	var d domain.Developer
	err := row.Scan(
		&d.ID, &d.AppID, &d.ClientID, &d.ClientSecretHash, &d.APIKeyHash, &d.APIKeyHint,
		&d.RateLimit, &d.Active, &d.CreatedAt, &d.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDeveloperNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create stores a new developer.
func (st *DeveloperStore) Create(ctx context.Context, d *domain.Developer) error {
	_, err := st.pool.Exec(ctx, `
		INSERT INTO tokgate_developers (`+developerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		d.ID, d.AppID, d.ClientID, d.ClientSecretHash, d.APIKeyHash, d.APIKeyHint,
		d.RateLimit, d.Active, d.CreatedAt, d.LastUsedAt,
	)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "uq_developers_app_id" {
			return domain.ErrAppIDTaken
		}
		return domain.ErrAPIKeyConflict
	}
	return err
}

func (st *DeveloperStore) getWhere(ctx context.Context, where string, arg any) (*domain.Developer, error) {
	return scanDeveloper(st.pool.QueryRow(ctx,
		`SELECT `+developerColumns+` FROM tokgate_developers WHERE `+where, arg))
}

// Get retrieves a developer by ID.
func (st *DeveloperStore) Get(ctx context.Context, id string) (*domain.Developer, error) {
	return st.getWhere(ctx, "id = $1", id)
}

// GetByAPIKeyHash retrieves a developer by API key hash.
func (st *DeveloperStore) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.Developer, error) {
	return st.getWhere(ctx, "api_key_hash = $1", hash)
}

// GetByClientID retrieves a developer by client ID.
func (st *DeveloperStore) GetByClientID(ctx context.Context, clientID string) (*domain.Developer, error) {
	return st.getWhere(ctx, "client_id = $1", clientID)
}

// List returns all developers ordered by ID.
func (st *DeveloperStore) List(ctx context.Context) ([]*domain.Developer, error) {
	rows, err := st.pool.Query(ctx,
		`SELECT `+developerColumns+` FROM tokgate_developers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Developer
	for rows.Next() {
		d, err := scanDeveloper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (st *DeveloperStore) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := st.pool.Exec(ctx, sql, args...)
	if _, ok := uniqueViolation(err); ok {
		return domain.ErrAPIKeyConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeveloperNotFound
	}
	return nil
}

// SetActive enables or disables a developer.
func (st *DeveloperStore) SetActive(ctx context.Context, id string, active bool) error {
	return st.execOne(ctx, `UPDATE tokgate_developers SET active = $2 WHERE id = $1`, id, active)
}

// UpdateAPIKey swaps the API key hash of a developer.
func (st *DeveloperStore) UpdateAPIKey(ctx context.Context, id, hash, hint string) error {
	return st.execOne(ctx,
		`UPDATE tokgate_developers SET api_key_hash = $2, api_key_hint = $3 WHERE id = $1`, id, hash, hint)
}

// TouchLastUsed advances last_used_at.
func (st *DeveloperStore) TouchLastUsed(ctx context.Context, id string, at int64) error {
	return st.execOne(ctx,
		`UPDATE tokgate_developers SET last_used_at = GREATEST(last_used_at, $2) WHERE id = $1`, id, at)
}
