package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrDatabaseInit = errors.New("database initialization failed")
)

// DB represents the database connection.
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema.
func New(dbPath string) (*DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", ErrDatabaseInit, err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseInit, err)
	}

	// Connection pool limits to prevent file descriptor exhaustion
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: failed to set pragma: %w", ErrDatabaseInit, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks the database connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate creates the database schema.
func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			property_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_property_id ON rooms(property_id)`,

		`CREATE TABLE IF NOT EXISTS feeds (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			property_id TEXT NOT NULL,
			room_id TEXT,
			last_sync_at DATETIME,
			auto_sync INTEGER NOT NULL DEFAULT 1,
			auto_resolve INTEGER NOT NULL DEFAULT 0,
			sync_interval INTEGER NOT NULL DEFAULT 60,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT,
			direction TEXT NOT NULL DEFAULT 'import',
			priority INTEGER NOT NULL DEFAULT 5,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_property_id ON feeds(property_id)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			property_id TEXT NOT NULL,
			room_id TEXT,
			feed_id TEXT,
			external_uid TEXT,
			channel TEXT,
			guest_name TEXT,
			check_in DATETIME NOT NULL,
			check_out DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'confirmed',
			notes TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_property_room ON bookings(property_id, room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_external_ref ON bookings(feed_id, external_uid)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(check_in, check_out)`,

		`CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			feed_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			room_id TEXT,
			existing_booking_id TEXT NOT NULL,
			incoming_uid TEXT NOT NULL,
			incoming_summary TEXT,
			incoming_start DATETIME NOT NULL,
			incoming_end DATETIME NOT NULL,
			resolution TEXT NOT NULL DEFAULT '',
			resolved_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conflicts_feed_id ON conflicts(feed_id)`,

		`CREATE TABLE IF NOT EXISTS feed_events (
			feed_id TEXT NOT NULL,
			event_uid TEXT NOT NULL,
			last_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (feed_id, event_uid),
			FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS sync_logs (
			id TEXT PRIMARY KEY,
			feed_id TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			events_processed INTEGER NOT NULL DEFAULT 0,
			events_created INTEGER NOT NULL DEFAULT 0,
			events_updated INTEGER NOT NULL DEFAULT 0,
			events_removed INTEGER NOT NULL DEFAULT 0,
			conflicts INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_feed_id ON sync_logs(feed_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_created_at ON sync_logs(created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE migrations
			if !isDuplicateColumnError(err) {
				return fmt.Errorf("%w: migration failed: %w", ErrDatabaseInit, err)
			}
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error is due to a duplicate column in ALTER TABLE.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") || strings.Contains(errStr, "already exists")
}
