package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/datavtar/localfirst/internal/kv"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteKV implements kv.Medium on a single SQLite table. Removal deletes
// the row outright; there is no tombstone cleaner for SQLite.
type SQLiteKV struct {
	DB *sql.DB
}

// NewSQLiteKV wraps a database opened by db.InitSQLite.
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{DB: db}
}

func (r *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, mapSQLiteError(err))
	}
	return value, true, nil
}

func (r *SQLiteKV) Set(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, mapSQLiteError(err))
	}
	return nil
}

func (r *SQLiteKV) Remove(ctx context.Context, key string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, mapSQLiteError(err))
	}
	return nil
}

func (r *SQLiteKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT key FROM kv_entries WHERE substr(key, 1, length(?1)) = ?1 ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
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

func mapSQLiteError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_FULL {
		return fmt.Errorf("%w: %v", kv.ErrQuotaExceeded, se)
	}
	return err
}
