// Package postgres provides relational storage for tokgate on PostgreSQL,
// using pgx connection pools.
//
// Session rotation is a conditional UPDATE (WHERE state = 'active') inside
// the same transaction as the successor insert, so the row lock taken by
// the first writer serializes concurrent rotations of one session.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds pool configuration.
type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// pingTimeout bounds the connectivity check at startup.
const pingTimeout = 3 * time.Second

// NewPool builds a pgxpool and validates connectivity.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := Ping(ctx, pool, pingTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Ping checks that a connection can be acquired within timeout.
func Ping(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Stores bundles the repositories sharing one pool.
type Stores struct {
	Sessions   *SessionStore
	Developers *DeveloperStore
	Users      *UserStore
}

// NewStores returns the repositories backed by pool.
func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Sessions:   &SessionStore{pool: pool},
		Developers: &DeveloperStore{pool: pool},
		Users:      &UserStore{pool: pool},
	}
}

// uniqueViolation returns the violated constraint name for a unique
// violation (SQLSTATE 23505).
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return pgErr.ConstraintName, true
}

const schema = `
CREATE TABLE IF NOT EXISTS tokgate_users (
	id            TEXT PRIMARY KEY,
	username      TEXT    NOT NULL,
	email         TEXT    NOT NULL,
	password_hash TEXT    NOT NULL,
	active        BOOLEAN NOT NULL,
	created_at    BIGINT  NOT NULL,
	last_login_at BIGINT  NOT NULL DEFAULT 0,
	CONSTRAINT uq_users_email UNIQUE (email)
);

CREATE TABLE IF NOT EXISTS tokgate_sessions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT   NOT NULL,
	access_token_hash  TEXT   NOT NULL,
	refresh_token_hash TEXT   NOT NULL,
	access_expires_at  BIGINT NOT NULL,
	expires_at         BIGINT NOT NULL,
	device             TEXT   NOT NULL DEFAULT '',
	ip_address         TEXT   NOT NULL DEFAULT '',
	state              TEXT   NOT NULL,
	replaced_by        TEXT   NOT NULL DEFAULT '',
	revoke_reason      TEXT   NOT NULL DEFAULT '',
	created_at         BIGINT NOT NULL,
	last_used_at       BIGINT NOT NULL,
	updated_at         BIGINT NOT NULL,
	version            BIGINT NOT NULL DEFAULT 0,
	CONSTRAINT uq_sessions_access_token_hash UNIQUE (access_token_hash),
	CONSTRAINT uq_sessions_refresh_token_hash UNIQUE (refresh_token_hash),
	CONSTRAINT ck_sessions_state CHECK (state IN ('active', 'rotated', 'revoked'))
);

CREATE INDEX IF NOT EXISTS ix_sessions_user_id ON tokgate_sessions (user_id);
CREATE INDEX IF NOT EXISTS ix_sessions_state_expires ON tokgate_sessions (state, expires_at);

CREATE TABLE IF NOT EXISTS tokgate_developers (
	id                 TEXT PRIMARY KEY,
	app_id             TEXT    NOT NULL,
	client_id          TEXT    NOT NULL,
	client_secret_hash TEXT    NOT NULL,
	api_key_hash       TEXT    NOT NULL,
	api_key_hint       TEXT    NOT NULL,
	rate_limit         BIGINT  NOT NULL,
	active             BOOLEAN NOT NULL,
	created_at         BIGINT  NOT NULL,
	last_used_at       BIGINT  NOT NULL DEFAULT 0,
	CONSTRAINT uq_developers_app_id UNIQUE (app_id),
	CONSTRAINT uq_developers_client_id UNIQUE (client_id),
	CONSTRAINT uq_developers_api_key_hash UNIQUE (api_key_hash)
);
`
