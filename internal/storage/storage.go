// Package storage opens the configured persistence backend and hands out the
// app and secret repositories built on it.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/config"
	"github.com/printpush/printpush/internal/database"
	"github.com/printpush/printpush/internal/secrets"
)

// Store bundles the repositories of one backend.
type Store struct {
	Driver  string
	Apps    apps.Repository
	Secrets secrets.Repository

	ping  func(ctx context.Context) error
	close func() error
}

// Open connects to the backend selected by cfg.Driver and applies pending
// migrations.
func Open(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store, registrations are lost on restart")
		return &Store{
			Driver:  cfg.Driver,
			Apps:    apps.NewInMemoryRepository(),
			Secrets: secrets.NewInMemoryRepository(),
			ping:    func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil

	case config.DriverSQLite, "":
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("sqlite store opened")
		return sqliteStore(db), nil

	case config.DriverPostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		return postgresStore(pool), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func sqliteStore(db *sql.DB) *Store {
	return &Store{
		Driver:  config.DriverSQLite,
		Apps:    apps.NewSQLiteRepository(db),
		Secrets: secrets.NewSQLiteRepository(db),
		ping:    db.PingContext,
		close:   db.Close,
	}
}

func postgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Driver:  config.DriverPostgres,
		Apps:    apps.NewPostgresRepository(pool),
		Secrets: secrets.NewPostgresRepository(pool),
		ping:    pool.Ping,
		close: func() error {
			pool.Close()
			return nil
		},
	}
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the backend connections.
func (s *Store) Close() error {
	return s.close()
}
