package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/internal/middleware"
	"github.com/vaultgate/vaultgate/internal/tracing"
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
		_, closer, err := tracing.InitTracer("vaultgate-ledger", cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	// Select the usage store
	var store ledger.Store
	var health func(context.Context) error

	switch cfg.Ledger.Store {
	case "postgres":
		pg, err := ledger.NewPostgresStore(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()

		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("Failed to ensure schema: %v", err)
		}
		store = pg
		health = pg.Health
	case "memory":
		store = ledger.NewMemoryStore()
	default:
		logger.Fatalf("Unknown ledger store %q", cfg.Ledger.Store)
	}

	svc := ledger.NewService(store, cfg.Ledger.DailyLimitBytes(), cfg.Ledger.StorageLimitBytes())

	h := &handlers{
		svc:    svc,
		health: health,
		log:    logger,
	}

	router := setupRouter(h, logger)

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

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting ledger server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.ErrorWithErr("metrics server shutdown failed", err)
		}
	}

	logger.Info("Server stopped")
}

func setupRouter(h *handlers, logger *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", h.healthCheck)
	router.POST("/usage", h.admitUsage)
	router.GET("/usage", h.queryUsage)
	router.PUT("/usage/absolute", h.setAbsolute)

	return router
}
