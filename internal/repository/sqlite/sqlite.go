// Package sqlite stores rules and synced messages in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_key    TEXT UNIQUE NOT NULL,
	rule_type   TEXT NOT NULL,
	match_value TEXT NOT NULL,
	category    TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT 'Manual',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT UNIQUE NOT NULL,
	sender        TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	snippet       TEXT NOT NULL DEFAULT '',
	date          DATETIME NOT NULL,
	size_estimate INTEGER NOT NULL DEFAULT 0,
	category      TEXT NOT NULL DEFAULT 'Unclassified',
	is_classified INTEGER NOT NULL DEFAULT 0,
	rule_source   TEXT NOT NULL DEFAULT '',
	is_archived   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_classified ON emails(is_classified, is_archived);
`

// DB wraps the SQLite connection shared by the repositories.
type DB struct {
	conn *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
