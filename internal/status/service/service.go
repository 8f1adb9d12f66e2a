package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"statusable/internal/status/models"
	dErrors "statusable/pkg/domain-errors"
	audit "statusable/pkg/platform/audit"
	"statusable/pkg/platform/middleware/metadata"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/platform/tx"
	"statusable/pkg/requestcontext"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// Store is the read/touch surface of the status store used by the service.
type Store interface {
	FindByID(ctx context.Context, id int64) (*models.Record, error)
	ListPage(ctx context.Context, entityType string, page, perPage int) (models.Page, error)
	Touch(ctx context.Context, id int64, now time.Time) error
}

// Translations persists and applies per-locale field values.
type Translations interface {
	Save(ctx context.Context, statusID int64, locale string, fields map[string]string) error
	Localize(ctx context.Context, locale string, records []*models.Record) error
	All(ctx context.Context, statusID int64) ([]models.Translation, error)
}

// Auditor records administrative changes. Emit must fail when the event
// cannot be persisted.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// View is a localized status with every stored translation attached.
type View struct {
	*models.Record
	PropertyTranslations []models.Translation `json:"property_translations"`
}

// ListQuery selects one page of statuses. Zero values fall back to defaults.
type ListQuery struct {
	EntityType string
	Page       int
	PerPage    int
	Locale     string
}

// ListResult is a page of views.
type ListResult struct {
	Data        []View `json:"data"`
	CurrentPage int    `json:"current_page"`
	PerPage     int    `json:"per_page"`
	Total       int    `json:"total"`
	LastPage    int    `json:"last_page"`
}

// UpdateInput carries the translated fields to store for one locale. Nil
// fields are left untouched.
type UpdateInput struct {
	Locale      string
	Name        *string
	Description *string
}

// Service lists statuses and updates their translations.
type Service struct {
	store         Store
	translations  Translations
	tx            tx.Runner
	auditor       Auditor
	logger        *slog.Logger
	defaultLocale string
	perPage       int
	now           func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditor records every translation update. The event is written in the
// update's transaction and a failed write aborts the update.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithDefaultLocale sets the locale used when neither the input nor the
// request context names one.
func WithDefaultLocale(locale string) Option {
	return func(s *Service) {
		s.defaultLocale = locale
	}
}

// WithPerPage sets the default page size.
func WithPerPage(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.perPage = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(store Store, translations Translations, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:         store,
		translations:  translations,
		tx:            runner,
		defaultLocale: "en",
		perPage:       defaultPerPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// List returns one page of statuses, latest id first, localized to the query
// locale.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = s.perPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	p, err := s.store.ListPage(ctx, strings.TrimSpace(q.EntityType), page, perPage)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list statuses")
	}
	if err := s.translations.Localize(ctx, s.locale(ctx, q.Locale), p.Records); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to localize statuses")
	}

	views := make([]View, 0, len(p.Records))
	for _, rec := range p.Records {
		all, err := s.translations.All(ctx, rec.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load translations")
		}
		views = append(views, View{Record: rec, PropertyTranslations: nonNil(all)})
	}
	return &ListResult{
		Data:        views,
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		Total:       p.Total,
		LastPage:    p.LastPage(),
	}, nil
}

// Update stores the given fields for one locale and returns the status
// localized to that locale with all its translations.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*View, error) {
	fields := make(map[string]string, len(models.TranslatableFields))
	if in.Name != nil {
		fields[models.FieldName] = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		fields[models.FieldDescription] = strings.TrimSpace(*in.Description)
	}
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one of name or description is required")
	}
	if v, ok := fields[models.FieldName]; ok && v == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name must not be empty")
	}
	locale := s.locale(ctx, in.Locale)

	var view *View
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rec, err := s.store.FindByID(txCtx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "status not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status")
		}
		if err := s.translations.Save(txCtx, id, locale, fields); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save translations")
		}
		now := s.timestamp(txCtx)
		if err := s.store.Touch(txCtx, id, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to touch status")
		}
		rec.UpdatedAt = now

		if err := s.translations.Localize(txCtx, locale, []*models.Record{rec}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to localize status")
		}
		all, err := s.translations.All(txCtx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load translations")
		}
		view = &View{Record: rec, PropertyTranslations: nonNil(all)}
		return s.audit(txCtx, id, locale, fields, now)
	})
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			s.logger.ErrorContext(ctx, "status update failed",
				"request_id", requestcontext.RequestID(ctx),
				"status_id", id,
				"error", err.Error(),
			)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "status translations updated",
		"request_id", requestcontext.RequestID(ctx),
		"status_id", id,
		"locale", locale,
		"fields", len(fields),
	)
	return view, nil
}

func (s *Service) audit(ctx context.Context, id int64, locale string, fields map[string]string, now time.Time) error {
	if s.auditor == nil {
		return nil
	}
	details := map[string]string{"locale": locale}
	for field, value := range fields {
		details[field] = value
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventStatusTranslated,
		Subject:   "status:" + strconv.FormatInt(id, 10),
		ActorID:   requestcontext.ActorID(ctx),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  metadata.GetClientIP(ctx),
		UserAgent: metadata.GetUserAgent(ctx),
		Details:   details,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit status update")
	}
	return nil
}

// timestamp prefers the clock option, then the request's pinned time.
func (s *Service) timestamp(ctx context.Context) time.Time {
	if s.now != nil {
		return s.now()
	}
	return requestcontext.Now(ctx)
}

func (s *Service) locale(ctx context.Context, explicit string) string {
	if l := strings.TrimSpace(explicit); l != "" {
		return l
	}
	if l := requestcontext.Locale(ctx); l != "" {
		return l
	}
	return s.defaultLocale
}

func nonNil(ts []models.Translation) []models.Translation {
	if ts == nil {
		return []models.Translation{}
	}
	return ts
}
