package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlasmedia/adboard-backend/api/routes"
	"github.com/atlasmedia/adboard-backend/internal/clients"
	"github.com/atlasmedia/adboard-backend/internal/dashboard"
	"github.com/atlasmedia/adboard-backend/pkg/cache"
	"github.com/atlasmedia/adboard-backend/pkg/config"
	"github.com/atlasmedia/adboard-backend/pkg/db"
	"github.com/atlasmedia/adboard-backend/pkg/db/models"
	"github.com/atlasmedia/adboard-backend/pkg/logger"
	"github.com/atlasmedia/adboard-backend/pkg/metrics"
	"github.com/atlasmedia/adboard-backend/pkg/platforms/factory"
	"github.com/atlasmedia/adboard-backend/pkg/redis"
	"github.com/atlasmedia/adboard-backend/pkg/vault"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if cfg.FeatureFlags.AutoMigrate {
		if err := dbClient.DB().AutoMigrate(&models.Client{}, &models.PlatformConnection{}, &models.Campaign{}); err != nil {
			logg.Error(context.Background(), "failed to run auto-migrations", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(registry)
	platformMetrics := metrics.NewPlatformMetrics(registry)

	cacheSvc := cache.NewService(cfg.Cache, cache.WithMetrics(cacheMetrics))

	credentialVault, err := vault.New(cfg.Vault)
	if err != nil {
		logg.Error(context.Background(), "failed to initialize credential vault", err)
		os.Exit(1)
	}

	adapterFactory := factory.New(credentialVault, cfg)

	clientService, err := clients.NewService(clients.NewRepository(dbClient.DB()), credentialVault, adapterFactory, cacheSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create client service", err)
		os.Exit(1)
	}

	dashboardService, err := dashboard.NewService(clientService, adapterFactory, cacheSvc, dashboard.WithMetrics(platformMetrics))
	if err != nil {
		logg.Error(context.Background(), "failed to create dashboard service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry, clientService, dashboardService),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}
