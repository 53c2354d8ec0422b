package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"lacocina/onboarding/internal/config"
	"lacocina/onboarding/internal/handler"
	"lacocina/onboarding/internal/model"
	"lacocina/onboarding/internal/repository"
	"lacocina/onboarding/internal/service"
	"lacocina/onboarding/internal/store"
	jwtpkg "lacocina/onboarding/pkg/jwt"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize state backend (memory, Redis or PostgreSQL)
	var backend repository.StateStore
	switch cfg.Store.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		backend = repository.NewRedisStateStore(redisClient)
		logger.Info("using Redis state backend")
	case "postgres":
		db, err := config.NewPostgresDB(cfg.Database.Postgres)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		if cfg.Database.Postgres.AutoMigrate {
			if err := model.AutoMigrate(db); err != nil {
				logger.Fatal("failed to auto-migrate", zap.Error(err))
			}
			logger.Info("database migration completed")
		}
		backend = repository.NewSQLStateStore(db)
		logger.Info("using PostgreSQL state backend")
	case "memory":
		backend = repository.NewMemoryStateStore()
		logger.Info("using in-memory state backend")
	default:
		logger.Fatal("unknown state backend", zap.String("backend", cfg.Store.Backend))
	}

	// 4. Expiring store, compacted once before serving
	root := store.New(backend,
		store.WithNamespace(cfg.Store.Namespace),
		store.WithLogger(logger.Named("store")),
	)
	evicted, err := root.Compact(context.Background())
	if err != nil {
		logger.Warn("startup compaction failed", zap.Error(err))
	} else {
		logger.Info("startup compaction completed", zap.Int("evicted", evicted))
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if cfg.Store.CompactInterval > 0 {
		go root.RunCompaction(bgCtx, cfg.Store.CompactInterval)
	}

	// 5. Initialize JWT manager
	jwtManager := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.ClientTokenTTL)

	// 6. Initialize services
	clientService := service.NewClientService(jwtManager)
	storageService := service.NewStorageService(root, cfg.Store.DefaultTTL)
	sessionService := service.NewSessionService(root, cfg.Session.Key, cfg.Session.Window)
	draftService := service.NewDraftService(root, cfg.Store.DefaultTTL, cfg.Autosave.Interval, cfg.Autosave.IdleTimeout,
		logger.Named("drafts"))

	// 7. Initialize handlers and router
	router := handler.SetupRouter(cfg, logger, jwtManager,
		handler.NewClientHandler(clientService),
		handler.NewStoreHandler(storageService),
		handler.NewSessionHandler(sessionService),
		handler.NewDraftHandler(draftService),
	)

	// 8. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 10. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	draftService.Shutdown(ctx)
	logger.Info("server exited gracefully")
}
