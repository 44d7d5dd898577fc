package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
    id          BIGSERIAL PRIMARY KEY,
    rule_key    TEXT UNIQUE NOT NULL,
    rule_type   TEXT NOT NULL,
    match_value TEXT NOT NULL,
    category    TEXT NOT NULL,
    source      TEXT NOT NULL DEFAULT 'Manual',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS emails (
    id            TEXT PRIMARY KEY,
    sender        TEXT NOT NULL DEFAULT '',
    subject       TEXT NOT NULL DEFAULT '',
    snippet       TEXT NOT NULL DEFAULT '',
    date          TIMESTAMPTZ NOT NULL,
    size_estimate BIGINT NOT NULL DEFAULT 0,
    category      TEXT NOT NULL DEFAULT 'Unclassified',
    is_classified BOOLEAN NOT NULL DEFAULT FALSE,
    rule_source   TEXT NOT NULL DEFAULT '',
    is_archived   BOOLEAN NOT NULL DEFAULT FALSE,
    synced_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_classified ON emails(is_classified, is_archived);
`

// EnsureSchema creates the rules and emails tables if they are missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
