package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giygas/pharmaprice-api/analysis"
	"github.com/giygas/pharmaprice-api/collections"
	"github.com/giygas/pharmaprice-api/config"
	"github.com/giygas/pharmaprice-api/currency"
	"github.com/giygas/pharmaprice-api/data"
	"github.com/giygas/pharmaprice-api/handlers"
	"github.com/giygas/pharmaprice-api/health"
	"github.com/giygas/pharmaprice-api/interfaces"
	"github.com/giygas/pharmaprice-api/kvstore"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/oracle"
	"github.com/giygas/pharmaprice-api/realtime"
	"github.com/giygas/pharmaprice-api/reconcile"
	"github.com/giygas/pharmaprice-api/scheduler"
	"github.com/giygas/pharmaprice-api/server"
	"github.com/giygas/pharmaprice-api/validation"
)

const (
	storageTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logService := logging.InitLogger(logging.Options{
		LogDir:         "logs",
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer func() { _ = logService.Close() }()

	if err := config.ValidateAllEnvVars(); err != nil {
		logging.Warn("Running without an oracle key, every analysis will fail", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	store, err := kvstore.Open(ctx, cfg)
	cancel()
	if err != nil {
		logging.Error("Failed to open collection store", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn("Failed to close collection store", "error", err)
		}
	}()

	hub := realtime.NewHub()

	manager := collections.NewManager(
		collections.Persister(store, storageTimeout),
		collections.SizeGauge(),
		hub.CollectionHook,
	)
	ctx, cancel = context.WithTimeout(context.Background(), storageTimeout)
	manager.Load(ctx, store)
	cancel()

	client := oracle.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	analyzer := analysis.NewOrchestrator(client, manager, analysis.Options{
		MaxImageDimension: cfg.ImageMaxDimension,
		OnComplete:        hub.AnalysisCompleted,
	})

	engine := reconcile.NewEngine(manager, currency.NewFormatter(cfg.CurrencySymbol, cfg.CurrencyLocale))
	engine.OnChange(hub.CheckoutHook)

	tracker := data.NewRefreshContainer()

	refreshSchedule := ""
	var refresher interfaces.Scheduler
	if cfg.RefreshEnabled {
		refreshSchedule = cfg.RefreshSchedule
		refresher = scheduler.NewScheduler(analyzer, manager, tracker, cfg.RefreshSchedule, cfg.OracleTimeout)
		if err := refresher.Start(); err != nil {
			logging.Error("Failed to start refresh scheduler", "error", err)
			os.Exit(1)
		}
	}

	healthChecker := health.NewHealthChecker(health.Sources{
		Analyzer:         analyzer,
		Collections:      manager,
		Store:            store,
		Refresh:          tracker,
		OracleConfigured: client.Configured(),
		RefreshSchedule:  refreshSchedule,
	})

	httpHandler := handlers.NewHTTPHandler(handlers.Dependencies{
		Analyzer:       analyzer,
		Collections:    manager,
		Checkout:       engine,
		Health:         healthChecker,
		Validator:      validation.NewInputValidator(int(cfg.MaxRequestBody)),
		OracleTimeout:  cfg.OracleTimeout,
		MaxUploadBytes: cfg.MaxRequestBody,
		StartTime:      tracker.GetServerStartTime(),
	})

	srv := server.NewServer(cfg, httpHandler, hub)

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logging.Info("Pharmacy price API started",
		"env", cfg.Env.String(),
		"storage", store.Backend(),
		"model", client.Model(),
		"oracle_configured", client.Configured(),
		"refresh_schedule", refreshSchedule,
	)

	exitCode := 0
	select {
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		logging.Error("Server failed", "error", err)
		exitCode = 1
	}

	if refresher != nil {
		refresher.Stop()
	}

	// Websocket connections are hijacked and not tracked by the HTTP server
	if err := hub.Close(); err != nil {
		logging.Warn("Failed to close realtime hub", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		exitCode = 1
	}

	if exitCode != 0 {
		_ = store.Close()
		_ = logService.Close()
		os.Exit(exitCode)
	}
}
