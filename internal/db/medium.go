package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datavtar/localfirst/internal/config"
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/repository"
	"go.uber.org/zap"
)

// Medium is an opened persistence medium together with the SQL handle behind
// it, if any. Close releases the handle.
type Medium struct {
	kv.Medium
	// SQL is non-nil for the sqlite and postgres drivers.
	SQL *sql.DB
}

// Close releases the underlying database, if any.
func (m *Medium) Close() error {
	if m.SQL == nil {
		return nil
	}
	return m.SQL.Close()
}

// OpenMedium builds the medium selected by opts.Medium.
func OpenMedium(ctx context.Context, opts *config.Options, log *zap.Logger) (*Medium, error) {
	log.Info("opening medium", zap.String("driver", opts.Medium))
	switch opts.Medium {
	case "memory":
		return &Medium{Medium: kv.NewMemory()}, nil
	case "file":
		f, err := kv.NewFile(opts.DataDir)
		if err != nil {
			return nil, err
		}
		return &Medium{Medium: f}, nil
	case "sqlite":
		sdb, err := InitSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Medium{Medium: repository.NewSQLiteKV(sdb), SQL: sdb}, nil
	case "postgres":
		pdb, err := InitPostgres(opts.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return &Medium{Medium: repository.NewPostgresKV(pdb), SQL: pdb}, nil
	case "s3":
		s, err := kv.NewS3(ctx, kv.S3Config{
			Bucket:    opts.S3.Bucket,
			Region:    opts.S3.Region,
			Endpoint:  opts.S3.Endpoint,
			Prefix:    opts.S3.Prefix,
			PathStyle: opts.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return &Medium{Medium: s}, nil
	case "remote":
		if opts.RemoteURL == "" {
			return nil, fmt.Errorf("remote medium requires a remote URL")
		}
		return &Medium{Medium: kv.NewRemote(opts.RemoteURL)}, nil
	default:
		return nil, fmt.Errorf("unknown medium %q", opts.Medium)
	}
}
