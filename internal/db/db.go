// Package db wraps the survey processing database: connection setup,
// pragmas, and schema migrations. All persistence-layer stores
// (catalog, stamps, model records, runs) are built on top of this
// wrapper.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the standard sql.DB with migration helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path and applies the
// connection pragmas the processing workload needs: WAL journaling for
// concurrent readers during long fits, and enforced foreign keys so
// catalog references cannot dangle.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}
	return &DB{sqlDB}, nil
}
