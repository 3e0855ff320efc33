package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/authapi/pkg/api"
	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/config"
	"github.com/platinummonkey/authapi/pkg/httputil"
	"github.com/platinummonkey/authapi/pkg/jobs"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/rbac"
	"github.com/platinummonkey/authapi/pkg/storage"
	"github.com/platinummonkey/authapi/pkg/storage/memory"
	"github.com/platinummonkey/authapi/pkg/storage/postgres"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authapi: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTel.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("authapi exited with error")
		os.Exit(1)
	}
}

// run wires every component from cfg and serves until ctx is cancelled or a
// server fails
func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	// releases whatever was opened before a wiring step failed
	fail := func(err error) error {
		_ = shutdown.Shutdown(context.Background())
		return err
	}

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fail(err)
	}
	shutdown.RegisterShutdownFunc("store", func(context.Context) error { return store.Close() })

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	cache, redisClient, err := rbac.NewCache(ctx, cfg.Cache, metrics)
	if err != nil {
		return fail(err)
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisClient.Close() })
	}

	auditLogger, err := openAuditLogger(cfg.Audit)
	if err != nil {
		return fail(err)
	}
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error { return auditLogger.Close() })

	server := api.NewServer(api.Dependencies{
		Store:   store,
		Cache:   cache,
		Audit:   auditLogger,
		Logger:  logger,
		Metrics: metrics,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     httputil.Chain(httputil.RequestIDMiddleware, httputil.RecoveryMiddleware)(healthMux(store, redisClient, registry, metrics != nil)),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)

	if metrics != nil && cfg.Jobs.GaugeSchedule != "" {
		scheduler := jobs.NewScheduler(logger, 0)
		if err := scheduler.Add("entity-gauges", cfg.Jobs.GaugeSchedule, gaugeRefresher(store, metrics).Refresh); err != nil {
			return fail(err)
		}
		scheduler.Start()
		shutdown.RegisterShutdownFunc("jobs", scheduler.Stop)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, logger.WithField("server", "api")) })
	g.Go(func() error { return serve(healthServer, logger.WithField("server", "health")) })
	g.Go(func() error { return shutdown.WaitForShutdown(gctx) })

	return g.Wait()
}

func serve(srv *http.Server, logger *observability.Logger) error {
	logger.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", srv.Addr, err)
	}
	return nil
}

// openStore builds the configured record store
func openStore(ctx context.Context, cfg storage.Config, logger *observability.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	case "postgres", "sqlite":
		store, err := postgres.New(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store.Connections().StartHealthCheckRoutine(ctx, 0)
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
}

func openAuditLogger(cfg config.AuditConfig) (audit.Logger, error) {
	if !cfg.Enabled {
		return audit.NewNoOpLogger(), nil
	}
	logger, err := audit.NewFileLogger(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return logger, nil
}

func healthMux(store storage.Store, redisClient *redis.Client, registry *prometheus.Registry, withMetrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(store, redisClient, version))
	if withMetrics {
		observability.RegisterMetricsEndpoint(mux, registry)
	}
	return mux
}

func gaugeRefresher(store storage.Store, metrics *observability.Metrics) *jobs.GaugeRefresher {
	refresher := jobs.NewGaugeRefresher(store, metrics)
	if sqlStore, ok := store.(*postgres.Store); ok {
		conns := sqlStore.Connections()
		refresher.WithDBStats(func() sql.DBStats { return conns.Stats().Primary })
	}
	return refresher
}
