// Package sqlite implements repository.Store on top of an embedded SQLite
// database (modernc.org/sqlite, no CGo).
//
// Every document is one JSON text column. Filters, sorts and single-field
// patches go through the JSON1 functions (json_extract, json_set). ":memory:"
// gives each caller a fresh store.
//
// LAYOUT:
//
//	documents(collection, id, doc)   -- one row per document, doc is JSON
//	counters(id, seq)                -- atomic sequences (account ids)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/classplanner/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out collections.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/classplanner.db" → file-based database (persistent)
//   - ":memory:"             → in-memory database (tests)
//
// ONE CONNECTION:
// The pool is capped at a single connection. For ":memory:" this is required
// (every new connection would open a different, empty database). For a file
// it serialises writers, which is what SQLite does anyway, and it makes every
// single statement, including the counter increment, atomic with respect to
// every other request.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers in other processes (backups, sqlite3 shell) proceed
	// while we write. In-memory databases silently keep their own mode.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Collection returns the named collection. Collections need no creation step:
// they are just a value of the collection column.
func (db *DB) Collection(name string) repository.Collection {
	return &collection{db: db, name: name}
}

// Increment atomically bumps the named counter and returns its new value.
//
// A single upsert statement does the read-modify-write inside SQLite, so two
// concurrent registrations can never observe the same value. The first call
// for a counter inserts it at 1.
func (db *DB) Increment(ctx context.Context, counter string) (int64, error) {
	var seq int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO counters (id, seq) VALUES (?, 1)
		 ON CONFLICT(id) DO UPDATE SET seq = seq + 1
		 RETURNING seq`,
		counter,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("sqlite: incrementing counter %s: %w", counter, err)
	}
	return seq, nil
}

// migrate creates the tables. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			doc        TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	// Expression indexes for the lookups the entity layer does on every
	// request: account by email, tasks by class.
	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_email
			ON documents(collection, json_extract(doc, '$.email'));
		CREATE INDEX IF NOT EXISTS idx_documents_class_id
			ON documents(collection, json_extract(doc, '$.class_id'));
	`)
	if err != nil {
		return fmt.Errorf("creating document indexes: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS counters (
			id  TEXT PRIMARY KEY,
			seq INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating counters table: %w", err)
	}

	return nil
}
