// Package app wires the status stack from configuration. Each backing
// service is optional: without it the in-process implementation is used.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	orderhandler "statusable/internal/order/handler"
	ordermodels "statusable/internal/order/models"
	orderservice "statusable/internal/order/service"
	orderstore "statusable/internal/order/store"
	"statusable/internal/platform/config"
	"statusable/internal/platform/kafka"
	platformmetrics "statusable/internal/platform/metrics"
	"statusable/internal/platform/postgres"
	platformredis "statusable/internal/platform/redis"
	"statusable/internal/status/cache"
	statushandler "statusable/internal/status/handler"
	statusmetrics "statusable/internal/status/metrics"
	"statusable/internal/status/notifier"
	"statusable/internal/status/registry"
	statusservice "statusable/internal/status/service"
	"statusable/internal/status/statusful"
	statusstore "statusable/internal/status/store"
	"statusable/internal/status/translation"
	audit "statusable/pkg/platform/audit"
	"statusable/pkg/platform/audit/publishers/compliance"
	auditmemory "statusable/pkg/platform/audit/store/memory"
	auditpostgres "statusable/pkg/platform/audit/store/postgres"
	"statusable/pkg/platform/httputil"
	"statusable/pkg/platform/middleware/auth"
	"statusable/pkg/platform/middleware/locale"
	"statusable/pkg/platform/middleware/metadata"
	"statusable/pkg/platform/middleware/requesttime"
	"statusable/pkg/platform/tx"
)

// App holds the wired components and the connections they own.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Manager  *statusful.Manager
	Statuses *statusservice.Service
	Orders   *orderservice.Service
	Audit    audit.Store

	gatherer    prometheus.Gatherer
	httpMetrics *platformmetrics.Metrics
	db          *sql.DB
	redis       goredis.UniversalClient
	kafka       *kgo.Client
}

// New connects to the configured backends and wires every component.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:      cfg,
		Logger:      logger,
		gatherer:    promRegistry,
		httpMetrics: platformmetrics.New(promRegistry),
	}
	statusMetrics := statusmetrics.New(promRegistry)

	var (
		statuses      *statusStores
		orders        orderservice.Store
		runner        tx.Runner
		indexCache    registry.IndexCache
		broadcaster   notifier.Broadcaster
		defaultLocale = cfg.Status.DefaultLocale
	)

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		statuses = &statusStores{
			records:      statusstore.NewPostgres(db),
			translations: translation.NewPostgres(db, defaultLocale),
		}
		orders = orderstore.NewPostgres(db)
		a.Audit = auditpostgres.New(db)
		runner = tx.NewPostgresRunner(db, cfg.Database.TxTimeout)
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		statuses = &statusStores{
			records:      statusstore.NewInMemoryStore(),
			translations: translation.NewInMemoryStore(defaultLocale),
		}
		orders = orderstore.NewInMemoryStore()
		a.Audit = auditmemory.NewInMemoryStore()
		runner = tx.NewInMemoryRunner()
	}

	redisClient, err := platformredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if redisClient != nil {
		a.redis = redisClient
		indexCache = cache.NewRedisIndexCache(redisClient, cache.WithLogger(logger))
	} else {
		logger.WarnContext(ctx, "redis not configured, status id cache is process-local")
		indexCache = cache.NewInMemoryIndexCache()
	}

	kafkaClient, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		a.Close()
		return nil, err
	}
	if kafkaClient != nil {
		a.kafka = kafkaClient
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.BroadcastTopic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			a.Close()
			return nil, err
		}
		broadcaster = notifier.NewKafkaBroadcaster(kafkaClient, cfg.Kafka.BroadcastTopic)
	} else {
		logger.WarnContext(ctx, "KAFKA_BROKERS not set, broadcasts are logged only")
		broadcaster = notifier.NewLogBroadcaster(logger)
	}

	a.Registry = registry.New(statuses.records, indexCache, statuses.translations,
		registry.Config{
			CacheRecords:  cfg.Status.CacheRecords,
			CacheIDs:      cfg.Status.CacheIDs,
			CacheKey:      cfg.Status.CacheKey,
			DefaultLocale: defaultLocale,
		},
		registry.WithLogger(logger),
		registry.WithMetrics(statusMetrics),
	)
	a.Registry.RegisterEntityType(&ordermodels.Order{})

	bus := notifier.NewBus(logger)
	notifier.NewExecuteStatusEvents(bus, logger, statusMetrics).Register()
	n := notifier.New(a.Registry, bus, broadcaster,
		notifier.WithLogger(logger),
		notifier.WithMetrics(statusMetrics),
	)
	a.Manager = statusful.NewManager(a.Registry, n,
		statusful.WithLogger(logger),
		statusful.WithMetrics(statusMetrics),
	)

	a.Statuses = statusservice.New(statuses.records, statuses.translations, runner,
		statusservice.WithLogger(logger),
		statusservice.WithDefaultLocale(defaultLocale),
		statusservice.WithPerPage(cfg.Status.PageSize),
		statusservice.WithAuditor(compliance.New(a.Audit,
			compliance.WithLogger(logger),
			compliance.WithMetrics(compliance.NewMetrics(promRegistry)),
		)),
	)
	a.Orders = orderservice.New(orders, a.Manager, runner, orderservice.WithLogger(logger))
	return a, nil
}

type statusStores struct {
	records interface {
		registry.Store
		statusservice.Store
	}
	translations interface {
		registry.Translator
		statusservice.Translations
	}
}

// Router builds the HTTP surface.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	negotiator := locale.NewNegotiator(a.Config.Status.DefaultLocale, a.Config.Status.SupportedLocales...)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(negotiator.Middleware)

	validator := auth.NewHMACValidator([]byte(a.Config.Server.JWTSigningKey), a.Config.Server.JWTIssuer)
	statushandler.New(a.Statuses, a.Logger, a.httpMetrics, validator).Register(r)
	orderhandler.New(a.Orders, a.Registry.ScopePerRequest, a.Logger, a.httpMetrics).Register(r)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Health(r.Context()); err != nil {
		a.Logger.WarnContext(r.Context(), "health check failed", "error", err.Error())
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health pings every configured backend.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.redis != nil {
		if err := platformredis.Health(ctx, a.redis); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.kafka != nil {
		if err := kafka.Health(ctx, a.kafka); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the backend connections.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
