package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/repository"
)

var _ repository.Purger = (*DB)(nil)

// PurgeOld deletes completed/failed rows created before cutoff in a single
// transaction, upscale rows first so the FK to jobs never dangles.
func (s *DB) PurgeOld(ctx context.Context, cutoff time.Time) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	cutoffMs := cutoff.UnixMilli()
	completed := string(model.JobStatusCompleted)
	failed := string(model.JobStatusFailed)

	upscales, err := execCount(ctx, tx, `
DELETE FROM upscale_jobs
WHERE status IN (?, ?) AND created_at < ?`,
		completed, failed, cutoffMs)
	if err != nil {
		return 0, 0, fmt.Errorf("purge upscale jobs: %w", err)
	}

	// A job still referenced by a surviving upscale row stays, whatever its
	// age; the FK must never dangle.
	jobs, err := execCount(ctx, tx, `
DELETE FROM jobs
WHERE status IN (?, ?) AND created_at < ?
  AND id NOT IN (SELECT source_job_id FROM upscale_jobs)`,
		completed, failed, cutoffMs)
	if err != nil {
		return 0, 0, fmt.Errorf("purge jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit purge: %w", err)
	}
	return jobs, upscales, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
