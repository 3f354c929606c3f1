package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/meridianlabs/meridian/internal/adapters/batch"
	"github.com/meridianlabs/meridian/internal/adapters/catalog"
	natsadapter "github.com/meridianlabs/meridian/internal/adapters/nats"
	"github.com/meridianlabs/meridian/internal/adapters/postgres"
	"github.com/meridianlabs/meridian/internal/core/domain"
	"github.com/meridianlabs/meridian/internal/core/usecases"
	"github.com/meridianlabs/meridian/internal/pkg/config"
	"github.com/meridianlabs/meridian/internal/pkg/logging"
)

// Builder runs graph build pipelines. With shard IDs as arguments it builds
// those shards; with no arguments it rebuilds every shard in the catalog.
func main() {
	cfg, err := config.Load("meridian-builder")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := logging.Setup(logLevel, "json")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shards, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	registry, err := usecases.NewRegistryService(shards)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	events, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer events.Close()

	batchClient := batch.NewClient(cfg.Batch.BaseURL, time.Duration(cfg.Batch.TimeoutSeconds)*time.Second)

	orch, err := usecases.NewOrchestratorService(usecases.OrchestratorConfig{
		Mode:         domain.AlgorithmMode(cfg.Pipeline.Mode),
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		MaxInFlight:  cfg.Pipeline.MaxInFlight,
		PollInitial:  time.Duration(cfg.Pipeline.PollInitialSeconds) * time.Second,
		PollMax:      time.Duration(cfg.Pipeline.PollMaxSeconds) * time.Second,
		Queue:        cfg.Pipeline.Queue,
		ArtifactBase: cfg.Pipeline.ArtifactBase,
	}, batchClient, registry, postgres.NewBuildRepo(db), events, logger)
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}

	targets := os.Args[1:]
	if len(targets) == 0 {
		for _, s := range shards {
			targets = append(targets, s.ID)
		}
	}

	slog.Info("starting builds", "shards", targets, "mode", cfg.Pipeline.Mode)

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, shardID := range targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			run, err := orch.BuildShard(ctx, id)
			if err != nil {
				slog.Error("build failed", "shard", id, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			slog.Info("build succeeded", "shard", id, "run", run.ID)
		}(shardID)
	}
	wg.Wait()

	if failed > 0 {
		slog.Error("builds finished with failures", "failed", failed, "total", len(targets))
		os.Exit(1)
	}
	slog.Info("all builds finished", "total", len(targets))
}
