// Kestrel - Entity risk assessment for transaction descriptions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/classify"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/enrich"
	"github.com/opensource-finance/kestrel/internal/extract"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/synth"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize synthetic data generator. It doubles as the enrichment
	// provider: the same seed reproduces the same entity universe.
	generator := synth.NewGenerator(cfg.Synth.Seed, nil)
	slog.Info("synthetic generator initialized", "seed", cfg.Synth.Seed)

	// Initialize enrichment service over the cache
	enricher := enrich.NewService(generator, cacheImpl, cfg.Enrichment.CacheTTL, logger)

	// Initialize entity extraction
	source := extract.New(classify.NewClassifier(classify.DefaultRules()))

	// Initialize anomaly engines
	scorerCfg := risk.DefaultConfig()
	detector := anomaly.NewDetector(anomaly.DefaultThresholds(), scorerCfg.JurisdictionRisk)
	tracker := anomaly.NewTracker(anomaly.DefaultThresholds(), cfg.Enrichment.MaxTrackedEntities)

	customEngine, err := anomaly.NewCustomEngine()
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, customEngine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("custom rule engine initialized", "rules_count", customEngine.RulesCount())

	// Initialize Risk Scorer
	scorer, err := risk.NewScorer(scorerCfg)
	if err != nil {
		slog.Error("failed to initialize risk scorer", "error", err)
		os.Exit(1)
	}

	// Initialize the analysis pipeline
	analyzer := pipeline.NewAnalyzer(pipeline.Config{
		Source:         source,
		Enricher:       enricher,
		Detector:       detector,
		Tracker:        tracker,
		Custom:         customEngine,
		Scorer:         scorer,
		Repo:           repo,
		Bus:            busImpl,
		AlertThreshold: cfg.AlertThreshold,
		Logger:         logger,
	})
	slog.Info("analysis pipeline initialized", "alert_threshold", cfg.AlertThreshold)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, analyzer)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	handler := api.NewHandler(repo, cacheImpl, analyzer, enricher, source, generator, customEngine, scorer, Version)
	srv := api.NewServer(cfg.Server, handler)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads custom anomaly rules into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *anomaly.CustomEngine) error {
	dbRules, err := repo.ListCustomRules(ctx)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                   KESTREL")
	fmt.Println("        Entity Risk Assessment Engine")
	fmt.Println("       Every name in every transaction.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/analyze                     - Analyze a transaction")
	fmt.Println("    POST /api/v1/batch-analyze               - Analyze synthetic transactions")
	fmt.Println("    GET  /api/v1/generate-transaction        - Generate a synthetic transaction")
	fmt.Println("    GET  /api/v1/extract-entities?text=...   - Extract entities from text")
	fmt.Println("    GET  /api/v1/entities/{name}             - Get enriched entity record")
	fmt.Println("    GET  /api/v1/entities/{name}/risk-score  - Score an entity standalone")
	fmt.Println("    GET  /api/v1/transactions/{id}           - Get transaction by ID")
	fmt.Println("    GET  /api/v1/analyses/{id}               - Get analysis result by ID")
	fmt.Println("    GET  /api/v1/rules                       - List custom anomaly rules")
	fmt.Println("    POST /api/v1/rules                       - Create a custom anomaly rule")
	fmt.Println("    POST /api/v1/rules/reload                - Hot-reload rules from database")
	fmt.Println("    GET  /health                             - Health check")
	fmt.Println()
}
