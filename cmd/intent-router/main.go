package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/infergate/intent-router/internal/classifier"
	"github.com/infergate/intent-router/internal/config"
	"github.com/infergate/intent-router/internal/engine"
	"github.com/infergate/intent-router/internal/gating"
	"github.com/infergate/intent-router/internal/llmapi"
	"github.com/infergate/intent-router/internal/reasoner"
	"github.com/infergate/intent-router/internal/server"
	"github.com/infergate/intent-router/internal/storage"
	memorystore "github.com/infergate/intent-router/internal/storage/memory"
	sqlitestore "github.com/infergate/intent-router/internal/storage/sqlite"
	"github.com/infergate/intent-router/internal/telemetry"
	"github.com/infergate/intent-router/internal/tuner"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.Init(telemetry.Options{
		ServiceName: "intent-router",
		Pretty:      cfg.Telemetry.Pretty,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	classifiers, err := newClassifiers(cfg)
	if err != nil {
		log.Fatalf("Failed to build classifiers: %v", err)
	}

	rsn := reasoner.New(cfg.Reasoner.Name,
		llmapi.New(cfg.Reasoner.Endpoint, cfg.Reasoner.APIKey, cfg.Reasoner.Model, cfg.Reasoner.Timeout),
		cfg.Reasoner.Timeout)

	policy := gating.NewAdaptivePolicy(cfg.Gating, cfg.Tuner.TargetEscalationRate, cfg.Tuner.AdjustmentStep)

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if cfg.Reconcile.Primary != "" {
		engineOpts = append(engineOpts, engine.WithPrimaryClassifier(cfg.Reconcile.Primary))
	}
	eng, err := engine.New(classifiers, rsn, policy, store, engineOpts...)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload swaps the gating section only; backends and storage require
	// a restart.
	if err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
		policy.SetConfig(next.Gating)
	}); err != nil {
		logger.Warn("config hot-reload disabled", slog.String("error", err.Error()))
	}

	if cfg.Tuner.Enabled {
		accuracy := tuner.StaticAccuracy{Cheap: cfg.Tuner.CheapAccuracy, Expensive: cfg.Tuner.ExpensiveAccuracy}
		t := tuner.New(policy, store, accuracy, cfg.Tuner.Interval, cfg.Tuner.Window, logger)
		go t.Run(ctx)
		logger.Info("adaptive tuner started",
			slog.Duration("interval", cfg.Tuner.Interval),
			slog.Float64("target_escalation_rate", cfg.Tuner.TargetEscalationRate))
	}

	srv := server.New(eng, store, logger,
		server.WithCostModel(cfg.Costs.CheapPer1K, cfg.Costs.ExpensivePer1K),
		server.WithStatsWindow(cfg.Server.StatsWindow))
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("intent router listening", slog.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		return sqlitestore.New(cfg.Storage.SQLite.Path)
	case "memory":
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func newClassifiers(cfg *config.Config) ([]classifier.Classifier, error) {
	classifiers := make([]classifier.Classifier, 0, len(cfg.Classifiers))
	for _, cc := range cfg.Classifiers {
		switch cc.Type {
		case "nlu":
			classifiers = append(classifiers, classifier.NewNLU(cc.Name, cc.Endpoint, cc.Timeout))
		case "llm":
			classifiers = append(classifiers,
				classifier.NewLLM(cc.Name, llmapi.New(cc.Endpoint, cc.APIKey, cc.Model, cc.Timeout), cc.Timeout))
		default:
			return nil, fmt.Errorf("unknown classifier type %q", cc.Type)
		}
	}
	return classifiers, nil
}
