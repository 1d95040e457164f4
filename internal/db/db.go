// Package db opens the SQLite database and manages its schema.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// connPragmas run once on the single pooled connection.
var connPragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// Open opens path (":memory:" for a throwaway database) with one pooled
// connection. Code running inside a transaction must use the *sql.Tx, never
// the *sql.DB, or it will wait on itself.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := connPragmas
	if path != ":memory:" {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}
