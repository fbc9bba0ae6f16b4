package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/bootstrap"
	"github.com/xelth-com/riveredgego/internal/crud"
	"github.com/xelth-com/riveredgego/internal/database"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/store"
)

// Handlers below run without a tenant context and read across tenants
// through the explicit bypass.

// listTenants returns every tenant, newest first
func (r *Router) listTenants(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	page, err := store.ParsePage(q)
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	var filter func(*gorm.DB) *gorm.DB
	if status := q.Get("status"); status != "" {
		if !validTenantStatus(models.TenantStatus(status)) {
			respond.Fail(w, req, apperr.KindValidation, "status: unknown tenant status %q", status)
			return
		}
		filter = func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) }
	}

	tenants := make([]models.Tenant, 0)
	if err := r.store.List(req.Context(), &models.Tenant{}, &tenants, page, filter, store.SkipTenantFilter()); err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, tenants)
}

func validTenantStatus(s models.TenantStatus) bool {
	switch s {
	case models.TenantActive, models.TenantInactive, models.TenantExpired, models.TenantSuspended:
		return true
	}
	return false
}

// TenantInput creates a tenant.
type TenantInput struct {
	Domain       string                 `json:"domain" validate:"required"`
	Name         string                 `json:"name" validate:"required,max=200"`
	Plan         models.TenantPlan      `json:"plan" validate:"omitempty,oneof=trial basic professional enterprise"`
	MaxUsers     int                    `json:"max_users" validate:"gte=0"`
	MaxStorageMB int64                  `json:"max_storage_mb" validate:"gte=0"`
	ExpiresAt    *time.Time             `json:"expires_at"`
	Settings     map[string]interface{} `json:"settings"`
}

// createTenant provisions a tenant with its default rules
func (r *Router) createTenant(w http.ResponseWriter, req *http.Request) {
	var in TenantInput
	if err := crud.Decode(req.Body, &in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := crud.Struct(in); err != nil {
		respond.Error(w, req, err)
		return
	}

	tenant := &models.Tenant{
		Domain:       in.Domain,
		Name:         in.Name,
		Plan:         in.Plan,
		MaxUsers:     in.MaxUsers,
		MaxStorageMB: in.MaxStorageMB,
		ExpiresAt:    in.ExpiresAt,
		Settings:     datatypes.JSONMap(in.Settings),
	}
	if err := bootstrap.Provision(req.Context(), r.deps.DB, tenant, false); err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, tenant)
}

func (r *Router) loadTenant(ctx context.Context, domain string) (*models.Tenant, error) {
	var tenant models.Tenant
	q, err := r.store.Query(ctx, &models.Tenant{}, store.SkipTenantFilter())
	if err != nil {
		return nil, err
	}
	err = q.Where(clause.Eq{Column: "domain", Value: strings.ToLower(domain)}).First(&tenant).Error
	if err != nil {
		return nil, apperr.FromDB(err, "tenant", "load")
	}
	return &tenant, nil
}

func (r *Router) getTenant(w http.ResponseWriter, req *http.Request) {
	tenant, err := r.loadTenant(req.Context(), mux.Vars(req)["domain"])
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, tenant)
}

// TenantPatch changes a tenant. Absent fields are left alone.
type TenantPatch struct {
	Name         *string                `json:"name" validate:"omitempty,min=1,max=200"`
	Status       *models.TenantStatus   `json:"status" validate:"omitempty,oneof=active inactive expired suspended"`
	Plan         *models.TenantPlan     `json:"plan" validate:"omitempty,oneof=trial basic professional enterprise"`
	MaxUsers     *int                   `json:"max_users" validate:"omitempty,gte=0"`
	MaxStorageMB *int64                 `json:"max_storage_mb" validate:"omitempty,gte=0"`
	ExpiresAt    *time.Time             `json:"expires_at"`
	Settings     map[string]interface{} `json:"settings"`
}

func (r *Router) updateTenant(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var in TenantPatch
	if err := crud.Decode(req.Body, &in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := crud.Struct(in); err != nil {
		respond.Error(w, req, err)
		return
	}

	tenant, err := r.loadTenant(ctx, mux.Vars(req)["domain"])
	if err != nil {
		respond.Error(w, req, err)
		return
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}
	if in.Plan != nil {
		updates["plan"] = *in.Plan
	}
	if in.MaxUsers != nil {
		updates["max_users"] = *in.MaxUsers
	}
	if in.MaxStorageMB != nil {
		updates["max_storage_mb"] = *in.MaxStorageMB
	}
	if in.ExpiresAt != nil {
		updates["expires_at"] = *in.ExpiresAt
	}
	if in.Settings != nil {
		updates["settings"] = datatypes.JSONMap(in.Settings)
	}
	if len(updates) == 0 {
		respond.Fail(w, req, apperr.KindValidation, "empty patch")
		return
	}

	if err := r.deps.DB.WithContext(ctx).Model(tenant).Updates(updates).Error; err != nil {
		respond.Error(w, req, apperr.FromDB(err, "tenant", "update"))
		return
	}
	r.deps.Directory.ForgetTenant(ctx, tenant)
	logger.FromContext(ctx).Info("🏢 Tenant updated", zap.String("domain", tenant.Domain))

	tenant, err = r.loadTenant(ctx, tenant.Domain)
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, tenant)
}

// UserInput creates a tenant user.
type UserInput struct {
	Username      string   `json:"username" validate:"required,max=100"`
	DisplayName   string   `json:"display_name" validate:"max=200"`
	Email         string   `json:"email" validate:"omitempty,email,max=200"`
	Password      string   `json:"password" validate:"required,min=8,max=200"`
	IsTenantAdmin bool     `json:"is_tenant_admin"`
	Roles         []string `json:"roles" validate:"max=50,dive,max=100"`
	Permissions   []string `json:"permissions" validate:"max=200,dive,max=100"`
}

// createTenantUser adds a user to a tenant within its user limit
func (r *Router) createTenantUser(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var in UserInput
	if err := crud.Decode(req.Body, &in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := crud.Struct(in); err != nil {
		respond.Error(w, req, err)
		return
	}

	tenant, err := r.loadTenant(ctx, mux.Vars(req)["domain"])
	if err != nil {
		respond.Error(w, req, err)
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		respond.Error(w, req, apperr.Wrap(err, apperr.KindInternal, "failed to hash password"))
		return
	}
	tenantID := tenant.ID
	user := &models.User{
		TenantID:      &tenantID,
		Username:      in.Username,
		DisplayName:   in.DisplayName,
		Email:         in.Email,
		PasswordHash:  hash,
		IsActive:      true,
		IsTenantAdmin: in.IsTenantAdmin,
		Roles:         in.Roles,
		Permissions:   in.Permissions,
	}

	err = r.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.User{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
			return apperr.FromDB(err, "user", "count")
		}
		if locked.MaxUsers > 0 && count >= int64(locked.MaxUsers) {
			return apperr.New(apperr.KindConflict, "tenant user limit of %d reached", locked.MaxUsers)
		}
		return apperr.FromDB(tx.Create(user).Error, "user", "create")
	})
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

// lockTenant re-reads the tenant row and holds it until tx ends, so
// concurrent quota checks on the same tenant run one at a time.
func lockTenant(tx *gorm.DB, id uint) (*models.Tenant, error) {
	q := tx.Where("id = ?", id)
	if database.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t models.Tenant
	res := q.Limit(1).Find(&t)
	if res.Error != nil {
		return nil, apperr.FromDB(res.Error, "tenant", "lock")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "tenant not found")
	}
	return &t, nil
}

// ReinitializeResult reports a bulk re-seed.
type ReinitializeResult struct {
	Initialized []string `json:"initialized"`
	Skipped     []string `json:"skipped"`
}

// reinitializeTenants re-seeds default rules into every usable tenant.
// Each tenant runs in its own transaction and is re-read first, so a tenant
// suspended mid-batch is skipped.
func (r *Router) reinitializeTenants(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var domains []string
	if err := r.deps.DB.WithContext(ctx).Model(&models.Tenant{}).Order("id").Pluck("domain", &domains).Error; err != nil {
		respond.Error(w, req, apperr.FromDB(err, "tenant", "list"))
		return
	}

	result := ReinitializeResult{Initialized: []string{}, Skipped: []string{}}
	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			respond.Error(w, req, apperr.Wrap(err, apperr.KindInternal, "request cancelled"))
			return
		}
		tenant, err := r.loadTenant(ctx, domain)
		if err != nil || !tenant.Usable(r.deps.Now()) {
			result.Skipped = append(result.Skipped, domain)
			continue
		}
		if err := bootstrap.InitializeTenant(ctx, r.deps.DB, tenant.ID); err != nil {
			logger.FromContext(ctx).Error("tenant re-initialization failed", zap.String("domain", domain), zap.Error(err))
			result.Skipped = append(result.Skipped, domain)
			continue
		}
		result.Initialized = append(result.Initialized, domain)
	}
	respond.JSON(w, http.StatusOK, result)
}
