package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/bootstrap"
	"github.com/xelth-com/riveredgego/internal/cache"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/config"
	"github.com/xelth-com/riveredgego/internal/database"
	"github.com/xelth-com/riveredgego/internal/handlers"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/statemachine"
	"github.com/xelth-com/riveredgego/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer log.Sync()

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database, cfg.Time)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Synchronize schema and the system tenant
	log.Info("🚀 Synchronizing database schema...")
	if err := database.Migrate(db.DB); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
	log.Info("✅ Schema synchronized successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := bootstrap.EnsureDefaultTenant(ctx, db.DB, cfg.Tenancy.DefaultTenantDomain); err != nil {
		log.Fatal("Failed to prepare the system tenant", zap.Error(err))
	}

	// 4. Directory cache: Redis when configured, in-process otherwise
	directoryCache := cache.Cache(cache.NewMemory())
	if cfg.RedisURL != "" {
		client, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("⚠️ Redis unavailable, using in-process cache", zap.Error(err))
		} else {
			directoryCache = cache.New(client)
			defer client.Close()
			log.Info("✅ Redis cache connected")
		}
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	router, err := handlers.NewRouter(handlers.Deps{
		DB:        db.DB,
		Tokens:    auth.NewTokens(cfg.Auth),
		Directory: auth.NewDirectory(db.DB, directoryCache),
		Codes:     codegen.NewGenerator(db.DB, cfg.Time.Location),
		Engine:    statemachine.NewEngine(db.DB, hub, cfg.Time.Now),
		Hub:       hub,
		Now:       cfg.Time.Now,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	// 5. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Warn("⚠️  Shutdown signal received, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close database (this also stops embedded PostgreSQL)
	log.Info("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Error("Database close error", zap.Error(err))
	}

	log.Info("✅ Shutdown complete")
}
