package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for the audit surface. Applied out-of-band in production;
// exposed here for integration tests and dev bootstrap.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id              UUID PRIMARY KEY,
	action          TEXT NOT NULL,
	entity_type     TEXT NOT NULL,
	entity_id       TEXT,
	before_snapshot JSONB,
	after_snapshot  JSONB,
	actor_id        TEXT,
	source_ip       TEXT,
	session_key     TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_entity
	ON audit_records (entity_type, entity_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_audit_records_actor
	ON audit_records (actor_id, created_at DESC);
`

// Migrate creates the audit surface if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}
