// Kestrel - Session risk scoring for online assessments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openproctor/kestrel/internal/api"
	"github.com/openproctor/kestrel/internal/assess"
	"github.com/openproctor/kestrel/internal/bus"
	"github.com/openproctor/kestrel/internal/cache"
	"github.com/openproctor/kestrel/internal/domain"
	"github.com/openproctor/kestrel/internal/history"
	"github.com/openproctor/kestrel/internal/model"
	"github.com/openproctor/kestrel/internal/repository"
	"github.com/openproctor/kestrel/internal/signal"
	"github.com/openproctor/kestrel/internal/worker"
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
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

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

	// Initialize Model Bank and restore persisted snapshots
	bank := model.NewBank(cfg.Scoring.Seed)
	if err := restoreModelSnapshots(ctx, repo, bank); err != nil {
		slog.Error("failed to restore model snapshots", "error", err)
		os.Exit(1)
	}
	slog.Info("model bank initialized", "trained", bank.TrainedCount())

	// Initialize Signal Engine
	engine, err := signal.NewEngine(cfg.Scoring.MaxSignalWorkers)
	if err != nil {
		slog.Error("failed to initialize signal engine", "error", err)
		os.Exit(1)
	}
	if err := loadSignalsFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load signals", "error", err)
		os.Exit(1)
	}
	slog.Info("signal engine initialized", "signals_count", engine.Count())

	// Initialize History Service
	historySvc := history.NewService(repo, cacheImpl)
	slog.Info("history service initialized")

	// Initialize Assessor
	assessor := assess.New(bank, engine, cfg.Scoring, historySvc)
	slog.Info("assessor initialized", "engine_version", assess.EngineVersion)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, assessor, bank)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, assessor, bank, engine, Version)

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

// GlobalTenantID is used for signals that apply to all tenants.
const GlobalTenantID = "*"

// restoreModelSnapshots restores persisted fitted models into the bank so a
// restart does not lose trained state.
func restoreModelSnapshots(ctx context.Context, repo domain.Repository, bank *model.Bank) error {
	snapshots, err := repo.ListModelSnapshots(ctx)
	if err != nil {
		slog.Warn("failed to list model snapshots", "error", err)
		return nil // Start with an untrained bank - seed or train via API
	}

	restored := 0
	for _, snap := range snapshots {
		if err := bank.Restore(snap); err != nil {
			slog.Warn("failed to restore model snapshot",
				"domain", snap.Domain,
				"model", snap.Model,
				"error", err,
			)
			continue
		}
		restored++
	}

	if restored > 0 {
		slog.Info("model snapshots restored", "count", restored)
	}
	return nil
}

// loadSignalsFromDatabase loads suspicion signals from the database into the
// engine. On first boot the builtin signal set is persisted so subsequent
// reloads and edits go through the same storage path.
func loadSignalsFromDatabase(ctx context.Context, repo domain.Repository, engine *signal.Engine) error {
	dbSignals, err := repo.ListSignalConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list signals from database", "error", err)
		return engine.LoadAll(signal.BuiltinSignals())
	}

	if len(dbSignals) > 0 {
		slog.Info("loading signals from database", "count", len(dbSignals))
		return engine.LoadAll(dbSignals)
	}

	slog.Info("no signals in database - seeding builtin set")
	builtins := signal.BuiltinSignals()
	for _, cfg := range builtins {
		if err := repo.SaveSignalConfig(ctx, GlobalTenantID, cfg); err != nil {
			slog.Warn("failed to persist builtin signal", "id", cfg.ID, "error", err)
		}
	}
	return engine.LoadAll(builtins)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║        Session Risk Scoring Engine        ║")
	fmt.Println("  ║       Eyes on every assessment.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess                         - Score a session")
	fmt.Println("    POST /features/extract               - Extract feature vectors")
	fmt.Println("    GET  /assessments/{id}               - Get assessment by ID")
	fmt.Println("    GET  /sessions/{id}                  - Get session by ID")
	fmt.Println("    GET  /models                         - List model states")
	fmt.Println("    POST /models/{domain}/seed           - Seed models on synthetic data")
	fmt.Println("    POST /models/{domain}/{model}/train  - Train a model")
	fmt.Println("    POST /models/{domain}/{model}/score  - Score with a single model")
	fmt.Println("    GET  /signals                        - List suspicion signals")
	fmt.Println("    POST /signals                        - Create a signal")
	fmt.Println("    POST /signals/reload                 - Hot-reload signals from database")
	fmt.Println("    GET  /health                         - Health check")
	fmt.Println()
}
