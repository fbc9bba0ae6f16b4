// Command bootstrap prepares a fresh installation: it migrates the schema,
// creates the system tenant with its default rules and the platform admin.
// Running it again is harmless.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/xelth-com/riveredgego/internal/bootstrap"
	"github.com/xelth-com/riveredgego/internal/config"
	"github.com/xelth-com/riveredgego/internal/database"
	"github.com/xelth-com/riveredgego/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Init(cfg.AppEnv, cfg.LogLevel)
	defer log.Sync()

	db, err := database.Connect(cfg.Database, cfg.Time)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := run(context.Background(), db, cfg); err != nil {
		log.Error("❌ Bootstrap failed", zap.Error(err))
		db.Close()
		os.Exit(1)
	}
	log.Info("✅ Bootstrap complete")
}

func run(ctx context.Context, db *database.DB, cfg *config.Config) error {
	if err := database.Migrate(db.DB); err != nil {
		return err
	}

	tenant, err := bootstrap.EnsureDefaultTenant(ctx, db.DB, cfg.Tenancy.DefaultTenantDomain)
	if err != nil {
		return err
	}
	logger.L().Info("🏢 System tenant ready", zap.String("domain", tenant.Domain))

	_, created, err := bootstrap.EnsurePlatformAdmin(ctx, db.DB,
		cfg.Tenancy.PlatformAdminUsername, cfg.Tenancy.PlatformAdminPassword)
	if err != nil {
		return err
	}
	if !created {
		logger.L().Info("👤 Platform admin already exists", zap.String("username", cfg.Tenancy.PlatformAdminUsername))
	}
	return nil
}
