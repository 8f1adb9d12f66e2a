package registry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// SeedResult is the outcome of seeding one entity type.
type SeedResult struct {
	EntityType string
	Created    []string
	Existing   int
	Err        error
}

// SeedReport collects per-type results in registration name order.
type SeedReport struct {
	Results []SeedResult
}

// Created returns the number of statuses created across all types.
func (r SeedReport) Created() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Created)
	}
	return n
}

// Failed returns the entity types that could not be fully seeded.
func (r SeedReport) Failed() []string {
	var failed []string
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res.EntityType)
		}
	}
	return failed
}

// SeedMissingStatuses ensures a record exists for every identifier of every
// registered entity type. It reads the id-index from the store, so a stale
// distributed copy cannot hide a missing status. A failing type does not stop
// the remaining ones; the returned error joins every failure.
func (r *Registry) SeedMissingStatuses(ctx context.Context) (SeedReport, error) {
	var report SeedReport
	err := r.traced(ctx, "status.seed", nil, func(ctx context.Context) error {
		scope := r.NewScope(r.cfg.DefaultLocale)
		entries, err := r.loadIndexFromStore(ctx)
		if err != nil {
			return err
		}
		scope.mu.Lock()
		scope.setIndexLocked(entries)
		scope.mu.Unlock()

		var errs []error
		for _, name := range r.RegisteredEntityTypes() {
			t, ok := r.entityType(name)
			if !ok {
				continue
			}
			res := r.seedType(ctx, scope, t)
			report.Results = append(report.Results, res)
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("seed %s: %w", name, res.Err))
			}
		}
		return errors.Join(errs...)
	})
	return report, err
}

func (r *Registry) seedType(ctx context.Context, scope *Scope, t EntityType) SeedResult {
	name := t.EntityType()
	res := SeedResult{EntityType: name}
	err := r.traced(ctx, "status.seed_type", []attribute.KeyValue{attribute.String("entity_type", name)},
		func(ctx context.Context) error {
			for _, identifier := range t.StatusIdentifiers() {
				if scope.has(name, identifier) {
					res.Existing++
					continue
				}
				if _, err := scope.LookupID(ctx, name, identifier); err != nil {
					return err
				}
				res.Created = append(res.Created, identifier)
			}
			return nil
		})
	res.Err = err
	if err != nil {
		r.logger.ErrorContext(ctx, "status seeding failed", "entity_type", name, "error", err)
		return res
	}
	r.logger.InfoContext(ctx, "statuses seeded",
		"entity_type", name,
		"created", len(res.Created),
		"existing", res.Existing,
	)
	return res
}
