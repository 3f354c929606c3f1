package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/meridianlabs/meridian/internal/adapters/catalog"
	"github.com/meridianlabs/meridian/internal/adapters/engine"
	"github.com/meridianlabs/meridian/internal/adapters/http"
	natsadapter "github.com/meridianlabs/meridian/internal/adapters/nats"
	"github.com/meridianlabs/meridian/internal/adapters/postgres"
	"github.com/meridianlabs/meridian/internal/adapters/valkey"
	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/ports"
	"github.com/meridianlabs/meridian/internal/core/usecases"
	"github.com/meridianlabs/meridian/internal/pkg/config"
	"github.com/meridianlabs/meridian/internal/pkg/logging"
	"github.com/meridianlabs/meridian/internal/pkg/metrics"
	"github.com/meridianlabs/meridian/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("meridian-gateway")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(ctx)
		}
	}

	// Shard catalog
	shards, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	registry, err := usecases.NewRegistryService(shards)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	slog.Info("shard catalog loaded", "path", cfg.Catalog.Path, "shards", len(shards))

	// Database (build history)
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	var routeCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, route caching disabled", "error", err)
	} else {
		routeCache = cache
		defer cache.Close()
	}

	// Routing engine client and services
	engineClient := engine.NewClient(time.Duration(cfg.Engine.TimeoutSeconds) * time.Second)
	resolver := usecases.NewResolverService(engineClient)
	router := usecases.NewRouterService(registry, engineClient, resolver, routeCache)

	// NATS: readiness sync + raw connection for the WebSocket relay
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, readiness sync disabled", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeShardReadiness(ctx, func(ctx context.Context, ev *domain.ReadinessEvent) error {
			if err := registry.SetReadiness(ev.ShardID, ev.State, ev.Artifact); err != nil {
				return fmt.Errorf("apply readiness event: %w", err)
			}
			slog.Info("shard readiness updated", "shard", ev.ShardID, "state", ev.State)
			return nil
		})
		if err != nil {
			slog.Warn("readiness subscription failed", "error", err)
		}
	}

	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Export DB pool gauges
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	deps := &http.Dependencies{
		Registry: registry,
		Router:   router,
		Builds:   postgres.NewBuildRepo(db),
		NATS:     natsConn,
		DB:       db,
		Cache:    cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Meridian Gateway",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.meridianlabs.io",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("gateway starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("gateway stopped")
}
