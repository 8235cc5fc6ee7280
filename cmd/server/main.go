package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dailydrops/drops/internal/api"
	"github.com/dailydrops/drops/internal/cache"
	"github.com/dailydrops/drops/internal/feed"
	"github.com/dailydrops/drops/internal/poller"
	"github.com/dailydrops/drops/internal/reconcile"
	"github.com/dailydrops/drops/internal/remote"
	"github.com/dailydrops/drops/internal/store"
	"github.com/dailydrops/drops/pkg/config"
	"github.com/dailydrops/drops/pkg/logging"
	"github.com/dailydrops/drops/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Drops API Server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Write-ahead backend: postgres when configured, else in-memory
	var backend store.Backend
	if cfg.Database.URL != "" {
		gormBackend, err := store.NewGormBackend(&cfg.Database, cfg.Logging.Level)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer gormBackend.Close()
		backend = gormBackend
	} else {
		logger.Warn("No database configured, write-ahead entries will not survive restarts")
		backend = store.NewMemoryBackend()
	}
	entryStore := store.New(backend)

	// Redis cache (optional)
	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisCache.Close()

	// Remote client
	remoteClient, err := remote.New(&cfg.Remote)
	if err != nil {
		logger.Fatal("Failed to initialize remote client", zap.Error(err))
	}

	// Confirmation poller
	supervisor := poller.New(
		entryStore,
		remoteClient.FindByLocalID,
		remoteClient.DeleteDiscussion,
		&cfg.Poller,
		cfg.Remote.Token,
	)
	defer supervisor.Shutdown()

	// Resume polls for entries left unconfirmed by a previous run
	if cfg.Remote.Token != "" {
		if err := supervisor.Resume(context.Background()); err != nil {
			logger.Error("Failed to resume confirmation polls", zap.Error(err))
		}
	} else {
		logger.Warn("No credential configured, unconfirmed entries will not be resumed")
	}

	// Orphan purge guard: a listing miss is verified with a point
	// lookup before the entry is dropped
	confirmAbsent := func(ctx context.Context, discussionID string) (bool, error) {
		post, err := remoteClient.FetchPost(ctx, cfg.Remote.Token, discussionID)
		if err != nil {
			return false, err
		}
		return post == nil, nil
	}
	reconciler := reconcile.New(entryStore, confirmAbsent)

	assetCache := cache.NewAssetCache(redisCache, remoteClient.FetchRawContent)

	tokens := api.TokenProvider(cfg.Remote.Token)
	svc := feed.New(remoteClient, entryStore, reconciler, supervisor, nil, tokens, cfg.Feed.PageSize)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiRouter := api.NewRouter(svc, assetCache, tokens)
	apiRouter.SetupRoutes(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown: stop accepting requests, then drain polls
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	supervisor.Shutdown()

	logger.Info("Server exited")
}
