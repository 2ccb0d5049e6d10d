package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/internal/queue"
	"github.com/vaultgate/vaultgate/internal/reconcile"
	"github.com/vaultgate/vaultgate/internal/storage"
	"github.com/vaultgate/vaultgate/internal/tracing"
	"github.com/vaultgate/vaultgate/pkg/models"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize tracing
	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("vaultgate-reconciler", cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize ledger client
	ledgerClient := ledger.NewClient(cfg.Ledger)

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	reconciler := reconcile.New(stor, ledgerClient, cfg.Reconciler.SweepInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("metrics server failed", err)
			}
		}()
	}

	// Drain journaled release gaps
	go func() {
		err := q.ConsumeGaps(ctx, func(gap *models.ReconciliationGap) error {
			return reconciler.HandleGap(ctx, gap)
		})
		if err != nil && ctx.Err() == nil {
			logger.ErrorWithErr("gap consumer stopped", err)
		}
	}()

	// Periodic absolute sweep
	go reconciler.Run(ctx)

	logger.Infof("Reconciler started, sweeping every %s", cfg.Reconciler.SweepInterval)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down reconciler...")
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("metrics server shutdown failed", err)
		}
	}

	logger.Info("Reconciler stopped")
}
