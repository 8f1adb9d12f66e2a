package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"statusable/internal/order/models"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/platform/tx"
)

const uniqueViolation = "23505"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists orders in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed order store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) querier(ctx context.Context) dbtx {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO orders (id, reference, status_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.Reference, o.StatusID(), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Update writes the order's reference, status and updated_at.
func (s *PostgresStore) Update(ctx context.Context, o *models.Order) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE orders SET reference = $2, status_id = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.Reference, o.StatusID(), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID loads an order with its status column marked persisted. Inside a
// transaction the row is locked for update.
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT id, reference, status_id, created_at, updated_at FROM orders WHERE id = $1`
	if _, ok := tx.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	var (
		o        models.Order
		statusID int64
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, id).
		Scan(&o.ID, &o.Reference, &statusID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	o.LoadStatusID(statusID)
	return &o, nil
}
