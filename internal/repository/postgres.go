// Package repository provides SQL backed key-value media for the entity
// stores, using PostgreSQL or SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datavtar/localfirst/internal/kv"
	"github.com/lib/pq"
)

// PostgresKV implements kv.Medium against the kv_entries table. Removals are
// soft: the row is tombstoned and later purged by db.StartTombstoneCleaner.
type PostgresKV struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
	// Now stamps row versions; defaults to time.Now.
	Now func() time.Time
}

// NewPostgresKV creates a PostgresKV using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance with the schema
// created by db.InitPostgres.
func NewPostgresKV(db *sql.DB) *PostgresKV {
	return &PostgresKV{DB: db, Now: time.Now}
}

func (r *PostgresKV) version() int64 {
	if r.Now == nil {
		return time.Now().UnixNano()
	}
	return r.Now().UnixNano()
}

// Get fetches the live value stored under key.
func (r *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `
		SELECT value FROM kv_entries WHERE key = $1 AND deleted = false
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, mapPostgresError(err))
	}
	return value, true, nil
}

// Set inserts or replaces the value under key, reviving a tombstoned row.
func (r *PostgresKV) Set(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, version, deleted)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			version = EXCLUDED.version,
			deleted = false
	`, key, value, r.version())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, mapPostgresError(err))
	}
	return nil
}

// Remove tombstones key. Removing an absent key affects no rows and succeeds.
func (r *PostgresKV) Remove(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE kv_entries SET deleted = true, version = $2 WHERE key = $1 AND deleted = false
	`, key, r.version())
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, mapPostgresError(err))
	}
	return nil
}

// Keys lists the live keys starting with prefix.
func (r *PostgresKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT key FROM kv_entries WHERE deleted = false AND left(key, length($1)) = $1 ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// mapPostgresError turns "insufficient resources" failures (class 53, e.g.
// disk_full) into kv.ErrQuotaExceeded.
func mapPostgresError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "53" {
		return fmt.Errorf("%w: %s", kv.ErrQuotaExceeded, pqErr.Message)
	}
	return err
}
