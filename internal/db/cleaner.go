package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartTombstoneCleaner purges kv rows tombstoned longer than retention ago,
// checking every interval until ctx is cancelled.
func StartTombstoneCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention).UnixNano()
				res, err := db.ExecContext(ctx, `
                    DELETE FROM kv_entries
                     WHERE deleted = true
                       AND version < $1
                `, cutoff)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Error("failed to purge kv tombstones", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("purged kv tombstones", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
