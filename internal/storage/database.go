package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when a session, deck, card or source does not exist.
var ErrNotFound = errors.New("storage: not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dsn == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// CreateSession registers a new anonymous session and returns its ID.
func (db *DB) CreateSession(ctx context.Context) (string, error) {
	id := newID()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at) VALUES (?, ?)
	`, id, db.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// SessionExists reports whether the anonymous session is known.
func (db *DB) SessionExists(ctx context.Context, id string) (bool, error) {
	var found int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up session %s: %w", id, err)
	}
	return true, nil
}
