package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteRepository is a SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite secret repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the stored value.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying secret %s: %w", name, err)
	}
	return value, nil
}

// PutIfAbsent stores value unless name exists.
func (r *SQLiteRepository) PutIfAbsent(ctx context.Context, name, value string) (string, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO secrets (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, value,
	); err != nil {
		return "", fmt.Errorf("storing secret %s: %w", name, err)
	}
	return r.Get(ctx, name)
}
