// Package storage opens the backend named by a database URL.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"podqueue/internal/store"
	"podqueue/internal/store/memstore"
	"podqueue/internal/store/postgres"
)

// Backend is everything the controller and worker need from storage.
type Backend interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	Close() error
	store.Queue
	store.JobStore
	store.JobLogStore
	store.CatalogStore
}

var (
	_ Backend = (*postgres.Store)(nil)
	_ Backend = (*memstore.Store)(nil)
)

// Open returns an in-process store for memory:// and a PostgreSQL store for
// postgres:// or postgresql://. migrate applies schema migrations to PostgreSQL.
func Open(ctx context.Context, databaseURL string, migrate bool, logger *slog.Logger) (Backend, error) {
	switch {
	case strings.HasPrefix(databaseURL, "memory://"):
		logger.Warn("using in-memory store, data is lost on exit")
		return memstore.New(), nil

	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		s, err := postgres.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			logger.Info("running database migrations")
			version, err := postgres.Migrate(s.DB())
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("database schema up to date", "version", version)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported database_url scheme in %q", redact(databaseURL))
	}
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(databaseURL string) string {
	if scheme, _, ok := strings.Cut(databaseURL, "://"); ok {
		return scheme + "://..."
	}
	return "..."
}
