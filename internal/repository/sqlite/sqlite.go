// Package sqlite implements the repository interfaces on an embedded
// SQLite database file, using the pure-Go modernc.org/sqlite driver (no
// CGo toolchain required).
//
// Use ":memory:" as the path for a throwaway database in tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB owns the connection pool. The per-table stores returned by Users and
// Posts share it.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, applies connection pragmas and runs
// migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would be its own empty
	// database, so pin the pool to one connection in that case.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the user store backed by this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Posts returns the post store backed by this database.
func (db *DB) Posts() *PostDB {
	return &PostDB{conn: db.conn}
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// media_type/media_url consistency and the status enum are enforced
	// here as well as in the service.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			caption    TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT 'none'
			           CHECK (media_type IN ('image', 'video', 'none')),
			media_url  TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'draft'
			           CHECK (status IN ('draft', 'published')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK ((media_type = 'none') = (media_url = ''))
		);
		CREATE INDEX IF NOT EXISTS idx_posts_owner_status_created
			ON posts(user_id, status, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
