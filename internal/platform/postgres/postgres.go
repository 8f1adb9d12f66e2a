// Package postgres opens the status database and owns its schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"statusable/internal/platform/config"
)

// Open connects to cfg.URL with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("open postgres: DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Schema is the DDL for the status tables, the example orders table and the
// audit trail.
// The unique index on (statusable_type, identifier) is what makes concurrent
// status creation safe across processes.
const Schema = `
CREATE TABLE IF NOT EXISTS statuses (
	id              BIGSERIAL PRIMARY KEY,
	statusable_type TEXT        NOT NULL,
	identifier      TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT statuses_type_identifier_key UNIQUE (statusable_type, identifier)
);

CREATE TABLE IF NOT EXISTS status_translations (
	status_id  BIGINT      NOT NULL REFERENCES statuses (id),
	locale     TEXT        NOT NULL,
	field      TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (status_id, locale, field)
);

CREATE TABLE IF NOT EXISTS orders (
	id         UUID        PRIMARY KEY,
	reference  TEXT        NOT NULL,
	status_id  BIGINT      NOT NULL REFERENCES statuses (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         UUID        PRIMARY KEY,
	category   TEXT        NOT NULL,
	action     TEXT        NOT NULL,
	subject    TEXT        NOT NULL,
	actor_id   TEXT        NOT NULL DEFAULT '',
	request_id TEXT        NOT NULL DEFAULT '',
	client_ip  TEXT        NOT NULL DEFAULT '',
	user_agent TEXT        NOT NULL DEFAULT '',
	details    JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies Schema. It is idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
