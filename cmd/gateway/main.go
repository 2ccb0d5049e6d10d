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

	"github.com/vaultgate/vaultgate/internal/audit"
	"github.com/vaultgate/vaultgate/internal/cache"
	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/gateway"
	"github.com/vaultgate/vaultgate/internal/identity"
	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/internal/middleware"
	"github.com/vaultgate/vaultgate/internal/queue"
	"github.com/vaultgate/vaultgate/internal/storage"
	"github.com/vaultgate/vaultgate/internal/token"
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
		_, closer, err := tracing.InitTracer("vaultgate-gateway", cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	// Initialize token service
	tokenSvc, err := token.NewService(cfg.Token)
	if err != nil {
		logger.Fatalf("Failed to initialize token service: %v", err)
	}

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize ledger client
	ledgerClient := ledger.NewClient(cfg.Ledger)

	// Initialize listing cache. The gateway works without it.
	var listingCache gateway.ListingCache
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.ErrorWithErr("cache unavailable, serving uncached", err)
	} else {
		listingCache = redisCache
		defer redisCache.Close()
	}

	// Initialize gap journal. Without it, failed releases are only logged
	// and the periodic sweep picks them up.
	var journal gateway.GapJournal
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.ErrorWithErr("queue unavailable, release gaps will not be journaled", err)
	} else {
		journal = q
		defer q.Close()
	}

	svc := gateway.New(ledgerClient, stor, journal, listingCache, logger)
	auditClient := audit.NewClient(cfg.Audit, logger)
	verifier := identity.FromConfig(cfg.Identity)

	h := &handlers{
		svc:    svc,
		tokens: tokenSvc,
		audit:  auditClient,
		log:    logger,
	}

	router := setupRouter(h, tokenSvc, verifier, cfg)

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
		logger.Infof("Starting gateway server on %s", addr)
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

func setupRouter(h *handlers, tokenSvc *token.Service, verifier identity.Verifier, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(h.log))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	router.Use(middleware.RateLimit(limiter))

	router.GET("/health", h.healthCheck)

	// Control surface: caller is a user session
	session := router.Group("/", middleware.IdentityAuth(verifier), middleware.RequireOwnPrincipal())
	{
		session.POST("/tokens", h.issueToken)
		session.GET("/objects", h.listObjects)
		session.DELETE("/objects", h.deleteObject)
		session.DELETE("/folder", h.deleteNamespace)
		session.GET("/usage", h.getUsage)
	}

	// Data surface: caller holds a capability token
	router.POST("/upload", middleware.CapabilityAuth(tokenSvc, token.ActionUpload), h.upload)
	router.GET("/stream/:objectName", middleware.CapabilityAuth(tokenSvc, token.ActionStream), h.stream)

	return router
}
