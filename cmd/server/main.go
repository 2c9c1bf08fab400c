package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pickflow/separation/internal/api"
	"github.com/pickflow/separation/internal/broadcast"
	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/internal/events"
	"github.com/pickflow/separation/internal/health"
	"github.com/pickflow/separation/internal/orchestrator"
	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/internal/wsapi"
	"github.com/pickflow/separation/pkg/database"
	"github.com/pickflow/separation/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability)
	ctx := context.Background()

	tracingProvider, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer tracingProvider.Shutdown(ctx)

	metricsProvider, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "1.0.0",
		Namespace:      "pickflow",
		Port:           9090,
		Enabled:        true,
	})
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	defer metricsProvider.Shutdown(ctx)
	go func() {
		if err := metricsProvider.StartMetricsServer(9090); err != nil {
			logger.Error(ctx, "failed to start metrics server", err)
		}
	}()

	db, err := database.NewPostgresDB(cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		logger.Warn(ctx, "failed to connect to redis, continuing without cache", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		defer redisClient.Close()
	}

	store := orders.NewPostgresStore(db)
	machine := orders.NewMachine(store)
	accessLog := orders.NewAccessLog(store)

	registry := presence.NewRegistry()

	metricsRecorder := &presenceMetricsAdapter{provider: metricsProvider}
	fabric := broadcast.NewFabric(registry, logger, metricsRecorder)

	publisher := events.NewPublisher(fabric)
	boundary := orchestrator.New(machine, publisher, logger, tracingProvider)

	wsHandler := wsapi.New(cfg.JWT.Secret, registry, fabric, accessLog, logger)

	healthChecker := health.NewChecker(db, redisClient, registry, logger, cfg.Observability.ServiceName, "1.0.0")

	server := api.NewServer(boundary, machine, accessLog, store, cfg.PDF, logger, metricsProvider)
	router := api.NewRouter(server, wsHandler, healthChecker, redisClient, cfg, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "starting order separation coordinator", map[string]interface{}{
			"addr": httpServer.Addr,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down order separation coordinator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Info(ctx, "order separation coordinator stopped")
}

// presenceMetricsAdapter narrows the metrics provider to the broadcast
// fabric's MetricsRecorder interface.
type presenceMetricsAdapter struct {
	provider *observability.MetricsProvider
}

func (a *presenceMetricsAdapter) RecordBroadcast(ctx context.Context, scope string) {
	a.provider.RecordBroadcast(ctx, scope)
}
