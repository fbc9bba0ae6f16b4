package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/cache"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

const directoryTTL = 30 * time.Second

// TenantInfo is the part of a tenant the boundary needs.
type TenantInfo struct {
	ID        uint                `json:"id"`
	Domain    string              `json:"domain"`
	Name      string              `json:"name"`
	Status    models.TenantStatus `json:"status"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

// Usable reports whether requests may run inside the tenant at now.
func (t *TenantInfo) Usable(now time.Time) bool {
	tenant := models.Tenant{Status: t.Status, ExpiresAt: t.ExpiresAt}
	return tenant.Usable(now)
}

func tenantInfo(t *models.Tenant) *TenantInfo {
	return &TenantInfo{ID: t.ID, Domain: t.Domain, Name: t.Name, Status: t.Status, ExpiresAt: t.ExpiresAt}
}

// PrincipalOf converts a user record.
func PrincipalOf(u *models.User) *tenancy.Principal {
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

// Directory looks up principals and tenants outside any tenant scope.
// Results are cached briefly; writers call the Forget methods.
type Directory struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewDirectory(db *gorm.DB, c cache.Cache) *Directory {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Directory{db: db, cache: c}
}

func principalKey(id uint) string { return fmt.Sprintf("principal:%d", id) }
func tenantIDKey(id uint) string  { return fmt.Sprintf("tenant:id:%d", id) }
func tenantSlugKey(s string) string {
	return "tenant:domain:" + s
}

// Principal returns the user with id, NOT_FOUND if absent.
func (d *Directory) Principal(ctx context.Context, id uint) (*tenancy.Principal, error) {
	var p tenancy.Principal
	if d.cached(ctx, principalKey(id), &p) {
		return &p, nil
	}
	var user models.User
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, apperr.FromDB(err, "user", "load")
	}
	principal := PrincipalOf(&user)
	d.store(ctx, principalKey(id), principal)
	return principal, nil
}

// Tenant resolves a selector: a numeric id or a domain slug.
func (d *Directory) Tenant(ctx context.Context, selector string) (*TenantInfo, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, apperr.Validation("tenant selector is empty")
	}
	if id, err := strconv.ParseUint(selector, 10, 64); err == nil {
		return d.TenantByID(ctx, uint(id))
	}
	return d.TenantByDomain(ctx, strings.ToLower(selector))
}

func (d *Directory) TenantByID(ctx context.Context, id uint) (*TenantInfo, error) {
	return d.tenant(ctx, tenantIDKey(id), "id = ?", id)
}

func (d *Directory) TenantByDomain(ctx context.Context, domain string) (*TenantInfo, error) {
	return d.tenant(ctx, tenantSlugKey(domain), "domain = ?", domain)
}

func (d *Directory) tenant(ctx context.Context, key, where string, arg interface{}) (*TenantInfo, error) {
	var info TenantInfo
	if d.cached(ctx, key, &info) {
		return &info, nil
	}
	var t models.Tenant
	if err := d.db.WithContext(ctx).Where(where, arg).First(&t).Error; err != nil {
		return nil, apperr.FromDB(err, "tenant", "load")
	}
	out := tenantInfo(&t)
	d.store(ctx, key, out)
	return out, nil
}

// ForgetPrincipal drops a cached principal after its record changed.
func (d *Directory) ForgetPrincipal(ctx context.Context, id uint) {
	d.forget(ctx, principalKey(id))
}

// ForgetTenant drops both cached forms of a tenant.
func (d *Directory) ForgetTenant(ctx context.Context, t *models.Tenant) {
	d.forget(ctx, tenantIDKey(t.ID), tenantSlugKey(t.Domain))
}

func (d *Directory) cached(ctx context.Context, key string, dst interface{}) bool {
	raw, err := d.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.FromContext(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (d *Directory) store(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, raw, directoryTTL); err != nil {
		logger.FromContext(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (d *Directory) forget(ctx context.Context, keys ...string) {
	if err := d.cache.Delete(ctx, keys...); err != nil {
		logger.FromContext(ctx).Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
