package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"statusable/internal/status/models"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/platform/tx"
)

// uniqueViolation is the postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists status records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed status store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) querier(ctx context.Context) dbtx {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const selectColumns = `SELECT id, statusable_type, identifier, created_at, updated_at FROM statuses`

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.Record, error) {
	row := s.querier(ctx).QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find status by id: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, entityType, identifier string) (*models.Record, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		selectColumns+` WHERE statusable_type = $1 AND identifier = $2`, entityType, identifier)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find status by key: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByEntityType(ctx context.Context, entityType string) ([]*models.Record, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, selectColumns+` WHERE statusable_type = $1 ORDER BY id`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list statuses by entity type: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) ListIDEntries(ctx context.Context) ([]models.IDEntry, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `SELECT id, statusable_type, identifier FROM statuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list status ids: %w", err)
	}
	defer rows.Close()

	var entries []models.IDEntry
	for rows.Next() {
		var e models.IDEntry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.Identifier); err != nil {
			return nil, fmt.Errorf("scan status id: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status ids: %w", err)
	}
	return entries, nil
}

// Insert creates a record for the pair and returns it with its assigned id.
// A duplicate pair returns sentinel.ErrConflict. Statuses are reference data,
// so the insert commits on its own even when ctx carries a transaction: an id
// published to the caches must never be rolled back.
func (s *PostgresStore) Insert(ctx context.Context, entityType, identifier string, now time.Time) (*models.Record, error) {
	record := &models.Record{EntityType: entityType, Identifier: identifier}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO statuses (statusable_type, identifier, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at, updated_at`,
		entityType, identifier, now,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("insert status: %w", err)
	}
	return record, nil
}

// ListPage returns records ordered by latest id first. An empty entityType
// lists every type. page is 1-based.
func (s *PostgresStore) ListPage(ctx context.Context, entityType string, page, perPage int) (models.Page, error) {
	q := s.querier(ctx)
	result := models.Page{Page: page, PerPage: perPage}

	if err := q.QueryRowContext(ctx,
		`SELECT count(*) FROM statuses WHERE ($1 = '' OR statusable_type = $1)`, entityType,
	).Scan(&result.Total); err != nil {
		return models.Page{}, fmt.Errorf("count statuses: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		selectColumns+` WHERE ($1 = '' OR statusable_type = $1) ORDER BY id DESC LIMIT $2 OFFSET $3`,
		entityType, perPage, (page-1)*perPage)
	if err != nil {
		return models.Page{}, fmt.Errorf("list status page: %w", err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return models.Page{}, err
	}
	result.Records = records
	return result, nil
}

func (s *PostgresStore) Touch(ctx context.Context, id int64, now time.Time) error {
	res, err := s.querier(ctx).ExecContext(ctx, `UPDATE statuses SET updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("touch status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch status: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var r models.Record
	if err := row.Scan(&r.ID, &r.EntityType, &r.Identifier, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]*models.Record, error) {
	defer rows.Close()
	var records []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return records, nil
}
