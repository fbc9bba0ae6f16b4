// Package testutil provides migrated in-memory databases and seed helpers.
package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/config"
	"github.com/xelth-com/riveredgego/internal/database"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// TimeConfig is the zone used by tests.
func TimeConfig() config.TimeConfig {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	return config.TimeConfig{Location: loc, UseTZ: true}
}

// NewDB returns a migrated in-memory SQLite database on a single
// connection, so concurrent callers serialize like row locks would.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open(":memory:"), "silent", TimeConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateTenant inserts an active tenant.
func CreateTenant(t testing.TB, db *gorm.DB, domain string) *models.Tenant {
	t.Helper()
	maxUsers, maxStorage := models.PlanQuota(models.PlanTrial)
	tenant := &models.Tenant{
		Domain:       domain,
		Name:         domain,
		Status:       models.TenantActive,
		Plan:         models.PlanTrial,
		MaxUsers:     maxUsers,
		MaxStorageMB: maxStorage,
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant %s: %v", domain, err)
	}
	return tenant
}

// CreateUser inserts an active tenant user.
func CreateUser(t testing.TB, db *gorm.DB, tenant *models.Tenant, username string) *models.User {
	t.Helper()
	tenantID := tenant.ID
	user := &models.User{
		TenantID:     &tenantID,
		Username:     username,
		DisplayName:  username,
		PasswordHash: "x",
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// CreatePlatformAdmin inserts an active platform admin.
func CreatePlatformAdmin(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username:        username,
		DisplayName:     username,
		PasswordHash:    "x",
		IsActive:        true,
		IsPlatformAdmin: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create admin %s: %v", username, err)
	}
	return user
}

// Principal converts a user for use in contexts.
func Principal(u *models.User) *tenancy.Principal {
	return &tenancy.Principal{
		ID:            u.ID,
		UUID:          u.UUID,
		TenantID:      u.TenantID,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		Active:        u.IsActive,
		TenantAdmin:   u.IsTenantAdmin,
		PlatformAdmin: u.IsPlatformAdmin,
		Roles:         u.Roles,
		Permissions:   u.Permissions,
	}
}

// TenantContext returns a context bound to the tenant and, if given, a principal.
func TenantContext(tenant *models.Tenant, user *models.User) context.Context {
	ctx := tenancy.WithTenant(context.Background(), tenant.ID)
	if user != nil {
		ctx = tenancy.WithPrincipal(ctx, Principal(user))
	}
	return ctx
}
