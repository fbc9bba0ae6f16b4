// Package bootstrap provisions tenants and the system accounts.
package bootstrap

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/statemachine"
	"github.com/xelth-com/riveredgego/internal/store"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// ReservedDomain holds system-level data.
const ReservedDomain = "default"

var domainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,61}[a-z0-9])$`)

// ValidateDomain checks a tenant slug: lowercase letters, digits and
// inner hyphens, 3 to 63 characters.
func ValidateDomain(domain string) error {
	if !domainPattern.MatchString(domain) {
		return apperr.Validation("domain: must be 3-63 lowercase letters, digits or hyphens")
	}
	return nil
}

// Provision creates a tenant and seeds its defaults in one transaction.
// The reserved domain is refused unless system is set.
func Provision(ctx context.Context, db *gorm.DB, t *models.Tenant, system bool) error {
	t.Domain = strings.ToLower(strings.TrimSpace(t.Domain))
	if err := ValidateDomain(t.Domain); err != nil {
		return err
	}
	if t.Domain == ReservedDomain && !system {
		return apperr.Validation("domain: %q is reserved", ReservedDomain)
	}
	if t.Status == "" {
		t.Status = models.TenantActive
	}
	if t.Plan == "" {
		t.Plan = models.PlanTrial
	}
	maxUsers, maxStorage := models.PlanQuota(t.Plan)
	if t.MaxUsers == 0 {
		t.MaxUsers = maxUsers
	}
	if t.MaxStorageMB == 0 {
		t.MaxStorageMB = maxStorage
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return apperr.FromDB(err, "tenant", "create")
		}
		return initialize(ctx, tx, t.ID)
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("🏢 Tenant provisioned", zap.String("domain", t.Domain))
	return nil
}

// InitializeTenant seeds the default code rules and transition rules.
// Rows that already exist are left alone.
func InitializeTenant(ctx context.Context, db *gorm.DB, tenantID uint) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return initialize(ctx, tx, tenantID)
	})
}

func initialize(ctx context.Context, tx *gorm.DB, tenantID uint) error {
	return tenancy.Run(ctx, tenantID, func(ctx context.Context) error {
		s := store.New(tx)

		for _, tpl := range codegen.Templates {
			rule, err := tpl.Rule()
			if err != nil {
				return err
			}
			exists, err := s.Exists(ctx, &models.CodeRule{}, "rule_code = ?", rule.RuleCode)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := s.Insert(ctx, rule); err != nil {
				return err
			}
		}

		for _, rule := range statemachine.DefaultRules() {
			rule := rule
			if err := statemachine.PrepareRule(&rule); err != nil {
				return err
			}
			exists, err := s.Exists(ctx, &models.TransitionRule{},
				"entity_type = ? AND from_state IN ? AND to_state IN ?",
				rule.EntityType, rule.FromState.Spellings(), rule.ToState.Spellings())
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := s.Insert(ctx, &rule); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDefaultTenant returns the system tenant, creating it on first run.
func EnsureDefaultTenant(ctx context.Context, db *gorm.DB, domain string) (*models.Tenant, error) {
	var t models.Tenant
	res := db.WithContext(ctx).Where("domain = ?", domain).Limit(1).Find(&t)
	if res.Error != nil {
		return nil, apperr.FromDB(res.Error, "tenant", "load")
	}
	if res.RowsAffected > 0 {
		return &t, InitializeTenant(ctx, db, t.ID)
	}

	t = models.Tenant{Domain: domain, Name: "System", Plan: models.PlanEnterprise}
	if err := Provision(ctx, db, &t, true); err != nil {
		return nil, err
	}
	return &t, nil
}

// EnsurePlatformAdmin creates the platform administrator if no user with
// that name exists outside any tenant.
func EnsurePlatformAdmin(ctx context.Context, db *gorm.DB, username, password string) (*models.User, bool, error) {
	var user models.User
	res := db.WithContext(ctx).Where("tenant_id IS NULL AND username = ?", username).Limit(1).Find(&user)
	if res.Error != nil {
		return nil, false, apperr.FromDB(res.Error, "user", "load")
	}
	if res.RowsAffected > 0 {
		return &user, false, nil
	}
	if password == "" {
		return nil, false, apperr.Validation("a password is required to create the platform admin")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, apperr.Wrap(err, apperr.KindInternal, "failed to hash password")
	}
	user = models.User{
		Username:        username,
		DisplayName:     "Platform Admin",
		PasswordHash:    hash,
		IsActive:        true,
		IsPlatformAdmin: true,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, false, apperr.FromDB(err, "user", "create")
	}
	logger.FromContext(ctx).Info("👤 Platform admin created", zap.String("username", username))
	return &user, true, nil
}
