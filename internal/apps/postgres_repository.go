package apps

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// appsLockKey is the advisory lock serializing writers across processes.
const appsLockKey = 7305_2201

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL app repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// List returns every stored instance ordered by expiry.
func (r *PostgresRepository) List(ctx context.Context) ([]AppInstance, error) {
	return listPostgres(ctx, r.pool)
}

// ReplaceAll replaces the stored instances in one transaction.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, instances []AppInstance) error {
	return r.Update(ctx, func([]AppInstance) ([]AppInstance, error) {
		return instances, nil
	})
}

// Update runs the read, fn and the rewrite in one transaction holding the
// apps advisory lock, so an API process and a worker process sharing the
// database apply their changes one after the other.
func (r *PostgresRepository) Update(ctx context.Context, fn UpdateFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appsLockKey); err != nil {
		return fmt.Errorf("acquiring apps lock: %w", err)
	}

	current, err := listPostgres(ctx, tx)
	if err != nil {
		return err
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	if err := writePostgres(ctx, tx, updated); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing apps: %w", err)
	}
	return nil
}

func listPostgres(ctx context.Context, q pgQuerier) ([]AppInstance, error) {
	query := `
		SELECT token, fallback_token, instance_id, display_name, display_description,
		       model, app_version, app_build, app_language, last_seen_at, expire_at
		FROM apps
		ORDER BY expire_at ASC
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying apps: %w", err)
	}
	defer rows.Close()

	var out []AppInstance
	for rows.Next() {
		var app AppInstance
		err := rows.Scan(
			&app.Token,
			&app.FallbackToken,
			&app.InstanceID,
			&app.DisplayName,
			&app.DisplayDescription,
			&app.Model,
			&app.AppVersion,
			&app.AppBuild,
			&app.AppLanguage,
			&app.LastSeenAt,
			&app.ExpireAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning app: %w", err)
		}
		out = append(out, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating apps: %w", err)
	}

	return out, nil
}

func writePostgres(ctx context.Context, tx pgx.Tx, instances []AppInstance) error {
	if _, err := tx.Exec(ctx, `DELETE FROM apps`); err != nil {
		return fmt.Errorf("clearing apps: %w", err)
	}

	rows := make([][]any, 0, len(instances))
	for _, app := range instances {
		rows = append(rows, []any{
			app.Token,
			app.FallbackToken,
			app.InstanceID,
			app.DisplayName,
			app.DisplayDescription,
			app.Model,
			app.AppVersion,
			app.AppBuild,
			app.AppLanguage,
			app.LastSeenAt,
			app.ExpireAt,
		})
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"apps"},
		[]string{
			"token", "fallback_token", "instance_id", "display_name", "display_description",
			"model", "app_version", "app_build", "app_language", "last_seen_at", "expire_at",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copying apps: %w", err)
	}
	return nil
}
