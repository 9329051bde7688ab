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

	"github.com/prometheus/client_golang/prometheus"

	"benefit_cycle_engine/internal/app"
	"benefit_cycle_engine/internal/infra/config"
	idb "benefit_cycle_engine/internal/infra/database"
	"benefit_cycle_engine/internal/infra/logger"
	"benefit_cycle_engine/internal/infra/metrics"
	"benefit_cycle_engine/internal/infra/scheduler"
)

func main() {
	fmt.Println("Benefit cycle daemon starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg)
	mainLogger := logger.Component(log, "main")
	mainLogger.Infof("Configuration loaded. LogLevel: %s, Environment: %s, Driver: %s", cfg.LogLevel, cfg.Environment, cfg.DatabaseDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, dialect, err := idb.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	mainLogger.Info("Database connection established and schema applied.")

	// Initialize Repositories
	benefitRepo := idb.NewBenefitRepository(db, dialect)
	statusRepo := idb.NewCycleStatusRepository(db, dialect)

	engineMetrics := metrics.Default()

	reconciler := app.NewReconciler(benefitRepo, statusRepo, logger.Component(log, "reconciler"), app.ReconcilerOptions{
		AnchorPolicy:   cfg.MissingAnchorPolicy,
		ValidationMode: cfg.ValidationMode,
		Workers:        cfg.ReconcileWorkers,
		Metrics:        engineMetrics,
	})
	mainLogger.Infof("Reconciler initialized (workers: %d, missing anchor: %s, validation: %s).",
		cfg.ReconcileWorkers, cfg.MissingAnchorPolicy, cfg.ValidationMode)

	reconcileScheduler := scheduler.NewReconcileScheduler(reconciler, logger.Component(log, "scheduler"), cfg.CronSpecReconcile)
	if err := reconcileScheduler.Start(); err != nil {
		mainLogger.Fatalf("Could not start reconcile scheduler: %v", err)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			mainLogger.Infof("Serving metrics on %s/metrics", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mainLogger.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	mainLogger.Info("Application setup complete. Waiting for scheduled reconciliations...")

	// Graceful shutdown
	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	reconcileScheduler.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			mainLogger.Warnf("Metrics server shutdown: %v", err)
		}
	}
	// db.Close() is handled by defer
	mainLogger.Info("Application shut down gracefully.")
}
