package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL secret repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get returns the stored value.
func (r *PostgresRepository) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM secrets WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying secret %s: %w", name, err)
	}
	return value, nil
}

// PutIfAbsent stores value unless name exists. Concurrent callers in other
// processes all end up reading the single winning row.
func (r *PostgresRepository) PutIfAbsent(ctx context.Context, name, value string) (string, error) {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO secrets (name, value) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, value,
	); err != nil {
		return "", fmt.Errorf("storing secret %s: %w", name, err)
	}
	return r.Get(ctx, name)
}
