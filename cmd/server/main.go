package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"statusable/internal/app"
	"statusable/internal/platform/config"
	"statusable/internal/platform/httpserver"
	"statusable/internal/platform/logger"
)

// main wires the status stack, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Status.CacheIDs {
		n, err := a.Registry.WarmIndex(ctx)
		if err != nil {
			log.Warn("status index warm-up failed", "error", err)
		} else {
			log.Info("status index ready", "entries", n)
		}
	}

	srv := httpserver.New(cfg.Server.Addr, a.Router())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, log)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
