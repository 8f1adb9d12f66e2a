// Command seed creates every missing status of every registered entity type.
// It exits non-zero when any entity type could not be seeded.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"statusable/internal/app"
	"statusable/internal/platform/config"
	"statusable/internal/platform/logger"
	audit "statusable/pkg/platform/audit"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		return 1
	}
	defer a.Close()

	report, err := a.Registry.SeedMissingStatuses(ctx)
	log.Info("seeding finished",
		"entity_types", len(report.Results),
		"created", report.Created(),
		"failed", report.Failed(),
	)
	if auditErr := a.Audit.Append(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: time.Now(),
		Action:    audit.EventStatusesSeeded,
		Subject:   "statuses",
		ActorID:   "cmd/seed",
		Details: map[string]string{
			"created": strconv.Itoa(report.Created()),
			"failed":  strings.Join(report.Failed(), ","),
		},
	}); auditErr != nil {
		log.Warn("failed to record seeding", "error", auditErr)
	}
	if err != nil {
		log.Error("seeding incomplete", "error", err)
		return 1
	}
	return 0
}
