package translation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"statusable/internal/status/models"
	"statusable/pkg/platform/tx"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresStore persists status translations in PostgreSQL.
type PostgresStore struct {
	db       *sql.DB
	fallback string
}

// NewPostgres constructs a translation store. Lookups in a locale without a
// value fall back to fallbackLocale.
func NewPostgres(db *sql.DB, fallbackLocale string) *PostgresStore {
	return &PostgresStore{db: db, fallback: fallbackLocale}
}

func (s *PostgresStore) querier(ctx context.Context) dbtx {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

// Save upserts the given field values for statusID in locale.
func (s *PostgresStore) Save(ctx context.Context, statusID int64, locale string, fields map[string]string) error {
	q := s.querier(ctx)
	for _, field := range sortedFields(fields) {
		_, err := q.ExecContext(ctx, `
			INSERT INTO status_translations (status_id, locale, field, value, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (status_id, locale, field)
			DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			statusID, locale, field, fields[field])
		if err != nil {
			return fmt.Errorf("save status translation: %w", err)
		}
	}
	return nil
}

// Localize fills Name and Description of records for locale in one query.
func (s *PostgresStore) Localize(ctx context.Context, locale string, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT status_id, locale, field, value FROM status_translations
		WHERE status_id = ANY($1) AND locale = ANY($2)`,
		pq.Array(ids), pq.Array([]string{locale, s.fallback}))
	if err != nil {
		return fmt.Errorf("localize statuses: %w", err)
	}
	translations, err := collect(rows)
	if err != nil {
		return err
	}
	apply(records, translations, locale, s.fallback)
	return nil
}

// All returns every translation of statusID ordered by locale and field.
func (s *PostgresStore) All(ctx context.Context, statusID int64) ([]models.Translation, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT status_id, locale, field, value FROM status_translations
		WHERE status_id = $1 ORDER BY locale, field`, statusID)
	if err != nil {
		return nil, fmt.Errorf("list status translations: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.Translation, error) {
	defer rows.Close()
	var out []models.Translation
	for rows.Next() {
		var t models.Translation
		if err := rows.Scan(&t.StatusID, &t.Locale, &t.Field, &t.Value); err != nil {
			return nil, fmt.Errorf("scan status translation: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status translations: %w", err)
	}
	return out, nil
}

// apply sets each record's fields from translations, preferring locale over
// fallback. Records with no value in either keep an empty field.
func apply(records []*models.Record, translations []models.Translation, locale, fallback string) {
	type slot struct {
		id    int64
		field string
	}
	chosen := make(map[slot]models.Translation, len(translations))
	for _, t := range translations {
		key := slot{t.StatusID, t.Field}
		if cur, ok := chosen[key]; ok && cur.Locale == locale {
			continue
		}
		if t.Locale == locale || t.Locale == fallback {
			chosen[key] = t
		}
	}
	for _, r := range records {
		r.Name = chosen[slot{r.ID, models.FieldName}].Value
		r.Description = chosen[slot{r.ID, models.FieldDescription}].Value
	}
}

func sortedFields(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
