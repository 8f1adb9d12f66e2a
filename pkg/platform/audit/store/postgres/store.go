package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	audit "statusable/pkg/platform/audit"
	txcontext "statusable/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction, so an audited change and its event commit together.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	category := event.Category
	if category == "" {
		category = event.Action.Category()
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (id, category, action, subject, actor_id, request_id, client_ip, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), string(category), string(event.Action), event.Subject, event.ActorID,
		event.RequestID, event.ClientIP, event.UserAgent, details, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT category, action, subject, actor_id, request_id, client_ip, user_agent, details, created_at
		FROM audit_events ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			action   string
			details  []byte
		)
		if err := rows.Scan(&category, &action, &e.Subject, &e.ActorID, &e.RequestID,
			&e.ClientIP, &e.UserAgent, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Action = audit.AuditEvent(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
