package apps

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteTimeFormat = time.RFC3339Nano

// SQLiteRepository is a SQLite implementation of Repository.
// The schema is created by database.OpenSQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite app repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// sqliteConn is satisfied by both *sql.DB and *sql.Tx.
type sqliteConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// List returns every stored instance ordered by expiry.
func (r *SQLiteRepository) List(ctx context.Context) ([]AppInstance, error) {
	return listSQLite(ctx, r.db)
}

// ReplaceAll replaces the stored instances in one transaction.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, instances []AppInstance) error {
	return r.Update(ctx, func([]AppInstance) ([]AppInstance, error) {
		return instances, nil
	})
}

// Update reads, applies fn and rewrites the table in one transaction. The
// database is opened with immediate transactions, so the write lock is taken
// before the read.
func (r *SQLiteRepository) Update(ctx context.Context, fn UpdateFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := listSQLite(ctx, tx)
	if err != nil {
		return err
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	if err := writeSQLite(ctx, tx, updated); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing apps: %w", err)
	}
	return nil
}

func listSQLite(ctx context.Context, conn sqliteConn) ([]AppInstance, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT token, fallback_token, instance_id, display_name, display_description,
		       model, app_version, app_build, app_language, last_seen_at, expire_at
		FROM apps
		ORDER BY expire_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying apps: %w", err)
	}
	defer rows.Close()

	var out []AppInstance
	for rows.Next() {
		var (
			app                 AppInstance
			fallback, desc      sql.NullString
			lastSeen, expiresAt string
		)
		if err := rows.Scan(
			&app.Token,
			&fallback,
			&app.InstanceID,
			&app.DisplayName,
			&desc,
			&app.Model,
			&app.AppVersion,
			&app.AppBuild,
			&app.AppLanguage,
			&lastSeen,
			&expiresAt,
		); err != nil {
			return nil, fmt.Errorf("scanning app: %w", err)
		}
		if fallback.Valid {
			app.FallbackToken = &fallback.String
		}
		if desc.Valid {
			app.DisplayDescription = &desc.String
		}
		if app.LastSeenAt, err = time.Parse(sqliteTimeFormat, lastSeen); err != nil {
			return nil, fmt.Errorf("parsing last_seen_at for %s: %w", app.TokenSuffix(), err)
		}
		if app.ExpireAt, err = time.Parse(sqliteTimeFormat, expiresAt); err != nil {
			return nil, fmt.Errorf("parsing expire_at for %s: %w", app.TokenSuffix(), err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating apps: %w", err)
	}
	sortByExpiry(out)
	return out, nil
}

func writeSQLite(ctx context.Context, conn sqliteConn, instances []AppInstance) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM apps`); err != nil {
		return fmt.Errorf("clearing apps: %w", err)
	}

	stmt, err := conn.PrepareContext(ctx, `
		INSERT INTO apps (token, fallback_token, instance_id, display_name, display_description,
		                  model, app_version, app_build, app_language, last_seen_at, expire_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, app := range instances {
		if _, err := stmt.ExecContext(ctx,
			app.Token,
			app.FallbackToken,
			app.InstanceID,
			app.DisplayName,
			app.DisplayDescription,
			app.Model,
			app.AppVersion,
			app.AppBuild,
			app.AppLanguage,
			app.LastSeenAt.UTC().Format(sqliteTimeFormat),
			app.ExpireAt.UTC().Format(sqliteTimeFormat),
		); err != nil {
			return fmt.Errorf("inserting app %s: %w", app.TokenSuffix(), err)
		}
	}
	return nil
}
