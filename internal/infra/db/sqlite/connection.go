package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the embedded engine handle shared by the repos.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database file, enables WAL and foreign keys,
// and applies the schema idempotently.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The embedded engine serialises writers; a single connection avoids
	// SQLITE_BUSY churn under WAL.
	db.SetMaxOpenConns(1)

	// Some pragmas report their new value as a row; run them as queries.
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`PRAGMA busy_timeout=5000;`,
	} {
		rows, err := db.QueryContext(ctx, pragma)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
		rows.Close()
	}

	s := &DB{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) Close() error { return s.db.Close() }
