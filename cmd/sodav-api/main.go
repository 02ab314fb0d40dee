package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sodav-monitor/sodav/pkg/api"
	"github.com/sodav-monitor/sodav/pkg/audit"
	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/config"
	"github.com/sodav-monitor/sodav/pkg/events"
	"github.com/sodav-monitor/sodav/pkg/fingerprint"
	"github.com/sodav-monitor/sodav/pkg/identity"
	"github.com/sodav-monitor/sodav/pkg/middleware"
	"github.com/sodav-monitor/sodav/pkg/monitor"
	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/realtime"
	"github.com/sodav-monitor/sodav/pkg/report"
	"github.com/sodav-monitor/sodav/pkg/storage/postgres"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// auditCleanupSchedule prunes expired audit records daily at 03:30 UTC.
const auditCleanupSchedule = "30 3 * * *"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sodav-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelCfg := cfg.Observability.OTel
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		return fmt.Errorf("failed to create OTel instruments: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Storage
	cm, err := postgres.Open(ctx, postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	store := postgres.NewStoreFromManager(cm, postgres.WithMetrics(otelMetrics))
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	health := observability.NewHealthChecker(version, observability.DependencyCheck{
		Name:     "postgres",
		Critical: true,
		Check:    observability.SQLCheck(cm.Primary()),
	})

	busOpts := []events.Option{events.WithMetrics(metrics), events.WithLogger(logger)}
	var songs monitor.SongStore = store
	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		health.Register(observability.DependencyCheck{Name: "redis", Check: observability.RedisCheck(redisClient)})
		busOpts = append(busOpts, events.WithBroker(postgres.NewEventBroker(redisClient, cfg.Storage.EventsChannel, logger)))
		songs = postgres.NewSongCache(store, redisClient, cfg.Storage.SongCacheTTL, otelMetrics, logger)
	} else {
		logger.Warn("Redis not configured: events stay local to this replica and song lookups are uncached")
	}
	bus := events.NewBus(busOpts...)
	hub := realtime.NewHub(bus, metrics, logger)

	// Access control
	verifier, err := identity.New(ctx, cfg.Identity)
	if err != nil {
		return fmt.Errorf("failed to create identity verifier: %w", err)
	}
	authOpts := []auth.Option{auth.WithLogger(logger), auth.WithObserver(metrics)}
	var recorder *audit.DBRecorder
	var auditHandlers *audit.Handlers
	if cfg.Audit.Enabled {
		recorder, err = audit.NewDBRecorder(cm.Primary())
		if err != nil {
			return err
		}
		authOpts = append(authOpts, auth.WithRecorder(recorder))
		auditHandlers = audit.NewHandlers(recorder)
	}
	authenticator := auth.NewAuthenticator(verifier, store, store, authOpts...)

	// Monitoring
	monitorOpts := []monitor.Option{
		monitor.WithPublisher(bus),
		monitor.WithMetrics(metrics),
		monitor.WithLogger(logger),
	}
	if cfg.Providers.AcoustIDKey != "" {
		monitorOpts = append(monitorOpts, monitor.WithAcoustID(fingerprint.NewAcoustIDClient(cfg.Providers, metrics, logger)))
	}
	if cfg.Providers.AudDToken != "" {
		monitorOpts = append(monitorOpts, monitor.WithAudD(fingerprint.NewAudDClient(cfg.Providers, metrics, logger)))
	}
	svc := monitor.NewService(store, songs, store, cfg.Monitor, monitorOpts...)

	generator := report.NewGenerator(store)
	var scheduler *report.Scheduler
	if cfg.Reports.Enabled {
		s3Client, err := postgres.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		archive := postgres.NewReportArchive(s3Client, cfg.Storage.S3Bucket, otelMetrics)
		if err := archive.EnsureBucket(ctx); err != nil {
			logger.WithError(err).Warn("Report bucket is not ready; uploads will be retried by the next run")
		}
		health.Register(observability.DependencyCheck{Name: "s3", Check: archive.HealthCheck})
		scheduler = report.NewScheduler(generator, archive, cfg.Reports.Schedule, metrics, logger)
	}

	var rateLimit *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimit = newRateLimit(ctx, cfg.RateLimit, redisClient, metrics)
	}

	srv := api.NewServer(api.Deps{
		Authenticator:  authenticator,
		Monitor:        svc,
		Channels:       store,
		Songs:          songs,
		Detections:     store,
		Keys:           auth.NewKeyManager(store),
		Reports:        generator,
		Audit:          auditHandlers,
		Hub:            hub,
		RateLimit:      rateLimit,
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, health)
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("event bus", func(context.Context) error {
		bus.Close()
		return nil
	})
	shutdown.Register("postgres", func(context.Context) error { return cm.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).WithField("version", version).Info("Starting SODAV Monitor API")
		return serve(httpServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return bus.Relay(gctx, nil) })
	if scheduler != nil {
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	if recorder != nil {
		g.Go(func() error { return runAuditCleanup(gctx, recorder, cfg.Audit.Retention, logger) })
	}
	if path := os.Getenv(config.FileEnv); path != "" {
		g.Go(func() error { return config.Watch(gctx, path, logger) })
	}
	cm.StartHealthCheckRoutine(gctx, 30*time.Second)
	g.Go(func() error { return shutdown.Wait(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("SODAV Monitor API stopped")
	return nil
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", server.Addr, err)
	}
	return nil
}

// newRateLimit uses Redis-backed limiters when configured and reachable so
// quotas hold across replicas, in-process buckets otherwise.
func newRateLimit(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client, metrics *observability.Metrics) *middleware.RateLimitMiddleware {
	anonymous, user, key := cfg.Anonymous, cfg.User, cfg.Key
	if cfg.Distributed && client != nil {
		return middleware.NewRateLimitMiddleware(
			middleware.NewDistributedRateLimiter(client, &anonymous, "sodav:ratelimit:anon"),
			middleware.NewDistributedRateLimiter(client, &user, "sodav:ratelimit:user"),
			middleware.NewDistributedRateLimiter(client, &key, "sodav:ratelimit:key"),
			metrics,
		)
	}
	limiters := []*middleware.RateLimiter{
		middleware.NewRateLimiter(&anonymous),
		middleware.NewRateLimiter(&user),
		middleware.NewRateLimiter(&key),
	}
	for _, l := range limiters {
		l.StartCleanup(ctx)
	}
	return middleware.NewRateLimitMiddleware(limiters[0], limiters[1], limiters[2], metrics)
}

func runAuditCleanup(ctx context.Context, recorder *audit.DBRecorder, retention time.Duration, logger *observability.Logger) error {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(auditCleanupSchedule, func() {
		removed, err := recorder.Cleanup(ctx, retention)
		if err != nil {
			logger.WithError(err).Error("Audit cleanup failed")
			return
		}
		logger.WithField("removed", removed).Info("Audit cleanup completed")
	})
	if err != nil {
		return fmt.Errorf("invalid audit cleanup schedule: %w", err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
