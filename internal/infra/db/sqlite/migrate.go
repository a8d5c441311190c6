package sqlite

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  origin_scope_id TEXT NOT NULL,
  origin_channel_id TEXT NOT NULL,
  status TEXT NOT NULL,
  model TEXT NOT NULL,
  sampler TEXT NOT NULL,
  scheduler TEXT NOT NULL,
  steps INTEGER NOT NULL,
  cfg REAL NOT NULL,
  seed INTEGER NOT NULL,
  size TEXT NOT NULL,
  positive_prompt TEXT NOT NULL,
  negative_prompt TEXT NOT NULL,
  adapters_json TEXT NOT NULL DEFAULT '[]',
  backend_prompt_id TEXT,
  output_images_json TEXT,
  error_message TEXT,
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_requester ON jobs(requester_id);

CREATE TABLE IF NOT EXISTS upscale_jobs (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  origin_scope_id TEXT NOT NULL,
  origin_channel_id TEXT NOT NULL,
  status TEXT NOT NULL,
  source_job_id TEXT NOT NULL REFERENCES jobs(id),
  source_image_filename TEXT NOT NULL,
  upscale_model TEXT NOT NULL,
  backend_prompt_id TEXT,
  output_images_json TEXT,
  error_message TEXT,
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS banned_words (
  word TEXT PRIMARY KEY COLLATE NOCASE,
  partial INTEGER NOT NULL DEFAULT 0,
  added_by TEXT NOT NULL,
  added_at INTEGER NOT NULL
);
`

// additive migrations: column name -> definition, applied only when the live
// table does not have the column yet, so re-running is a no-op.
var jobMigrations = []struct {
	table, column, definition string
}{
	{"jobs", "adapters_json", "TEXT NOT NULL DEFAULT '[]'"},
	{"upscale_jobs", "upscale_model", "TEXT NOT NULL DEFAULT ''"},
}

func (s *DB) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	for _, m := range jobMigrations {
		has, err := s.hasColumn(ctx, m.table, m.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.definition)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

func (s *DB) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
