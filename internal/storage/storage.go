package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/internal/storage/badgerdb"
	"github.com/yndnr/tokgate/internal/storage/memory"
	"github.com/yndnr/tokgate/internal/storage/postgres"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config selects a backend and carries its settings.
type Config struct {
	Backend string

	Badger   badgerdb.Config
	Postgres postgres.Config
}

// Backend is an opened set of repositories.
type Backend struct {
	Name       string
	Sessions   service.SessionRepository
	Developers service.DeveloperRepository
	Users      service.UserRepository

	close func() error
}

// Close releases the backend's resources.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open opens the configured backend. reg may be nil; when set, backends
// that export metrics register them there.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, reg prometheus.Registerer) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return &Backend{
			Name:       BackendMemory,
			Sessions:   memory.NewSessionStore(),
			Developers: memory.NewDeveloperStore(),
			Users:      memory.NewUserStore(),
		}, nil

	case BackendBadger:
		engine, err := badgerdb.Open(cfg.Badger, logger)
		if err != nil {
			return nil, err
		}
		if reg != nil {
			if err := engine.RegisterMetrics(reg); err != nil {
				_ = engine.Close()
				return nil, err
			}
		}
		return &Backend{
			Name:       BackendBadger,
			Sessions:   engine.Sessions(),
			Developers: engine.Developers(),
			Users:      engine.Users(),
			close:      engine.Close,
		}, nil

	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := postgres.EnsureSchema(schemaCtx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		stores := postgres.NewStores(pool)
		logger.Info("postgres storage ready", "max_conns", pool.Config().MaxConns)
		return &Backend{
			Name:       BackendPostgres,
			Sessions:   stores.Sessions,
			Developers: stores.Developers,
			Users:      stores.Users,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}

	return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
}
