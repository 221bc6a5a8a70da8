package db_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datavtar/localfirst/internal/config"
	"github.com/datavtar/localfirst/internal/db"
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/repository"
	"go.uber.org/zap"
)

func TestInitPostgres_ErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		dsn        string
		wantSubstr string
	}{
		{"invalid DSN", "some=random", "ping postgres"},
		{"empty DSN", "", "ping postgres"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.InitPostgres(tc.dsn)
			if err == nil {
				t.Fatalf("InitPostgres(%q) did not return error", tc.dsn)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("InitPostgres(%q) error = %q; want substring %q", tc.dsn, err.Error(), tc.wantSubstr)
			}
		})
	}
}

func TestInitSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	for i := 0; i < 2; i++ {
		sdb, err := db.InitSQLite(path)
		if err != nil {
			t.Fatalf("InitSQLite #%d returned error: %v", i+1, err)
		}
		var n int
		if err := sdb.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if n != 1 {
			t.Errorf("schema_migrations has %d rows; want 1", n)
		}
		sdb.Close()
	}
}

func TestOpenMedium(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		opts    config.Options
		check   func(*db.Medium) bool
		wantErr bool
	}{
		{name: "memory", opts: config.Options{Medium: "memory"}, check: func(m *db.Medium) bool {
			_, ok := m.Medium.(*kv.Memory)
			return ok
		}},
		{name: "file", opts: config.Options{Medium: "file", DataDir: filepath.Join(dir, "files")}, check: func(m *db.Medium) bool {
			_, ok := m.Medium.(*kv.File)
			return ok
		}},
		{name: "sqlite", opts: config.Options{Medium: "sqlite", SQLitePath: filepath.Join(dir, "kv.db")}, check: func(m *db.Medium) bool {
			_, ok := m.Medium.(*repository.SQLiteKV)
			return ok && m.SQL != nil
		}},
		{name: "remote", opts: config.Options{Medium: "remote", RemoteURL: "http://localhost:1"}, check: func(m *db.Medium) bool {
			_, ok := m.Medium.(*kv.Remote)
			return ok
		}},
		{name: "remote without url", opts: config.Options{Medium: "remote"}, wantErr: true},
		{name: "s3 without bucket", opts: config.Options{Medium: "s3"}, wantErr: true},
		{name: "unknown", opts: config.Options{Medium: "floppy"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := db.OpenMedium(context.Background(), &tc.opts, zap.NewNop())
			if tc.wantErr {
				if err == nil {
					t.Fatal("OpenMedium succeeded; want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenMedium returned error: %v", err)
			}
			defer m.Close()
			if !tc.check(m) {
				t.Errorf("OpenMedium(%s) returned %T", tc.name, m.Medium)
			}
		})
	}
}
