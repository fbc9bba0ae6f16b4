package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/crud"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// LoginRequest represents a login request. Tenant is the domain slug and
// is omitted on the platform login.
type LoginRequest struct {
	Tenant   string `json:"tenant"`
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// TokenResponse is returned by both login endpoints.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

var errInvalidCredentials = apperr.New(apperr.KindAuthInvalid, "invalid credentials")

// login handles tenant user login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var in LoginRequest
	if err := crud.Decode(req.Body, &in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := crud.Struct(in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if strings.TrimSpace(in.Tenant) == "" {
		respond.Fail(w, req, apperr.KindValidation, "tenant: required")
		return
	}

	// 1. Find tenant
	tenant, err := r.deps.Directory.TenantByDomain(req.Context(), strings.ToLower(strings.TrimSpace(in.Tenant)))
	if err != nil || !tenant.Usable(r.deps.Now()) {
		respond.Error(w, req, errInvalidCredentials)
		return
	}

	// 2. Find user inside it
	var user models.User
	res := r.deps.DB.WithContext(req.Context()).
		Where("tenant_id = ? AND username = ?", tenant.ID, in.Username).Limit(1).Find(&user)
	if res.Error != nil {
		respond.Error(w, req, apperr.FromDB(res.Error, "user", "load"))
		return
	}
	r.issue(w, req, &user, res.RowsAffected, in.Password)
}

// adminLogin handles platform administrator login
func (r *Router) adminLogin(w http.ResponseWriter, req *http.Request) {
	var in LoginRequest
	if err := crud.Decode(req.Body, &in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if err := crud.Struct(in); err != nil {
		respond.Error(w, req, err)
		return
	}
	if in.Tenant != "" {
		respond.Fail(w, req, apperr.KindValidation, "tenant: not allowed on platform login")
		return
	}

	var user models.User
	res := r.deps.DB.WithContext(req.Context()).
		Where("tenant_id IS NULL AND is_platform_admin = ? AND username = ?", true, in.Username).Limit(1).Find(&user)
	if res.Error != nil {
		respond.Error(w, req, apperr.FromDB(res.Error, "user", "load"))
		return
	}
	r.issue(w, req, &user, res.RowsAffected, in.Password)
}

// issue checks the password and responds with a fresh access token.
func (r *Router) issue(w http.ResponseWriter, req *http.Request, user *models.User, found int64, password string) {
	if found == 0 || !user.IsActive || !auth.CheckPasswordHash(password, user.PasswordHash) {
		respond.Error(w, req, errInvalidCredentials)
		return
	}

	now := r.deps.Now()
	if err := r.deps.DB.WithContext(req.Context()).Model(user).Update("last_login", now).Error; err != nil {
		logger.FromContext(req.Context()).Warn("failed to record last login", zap.Error(err))
	}

	token, exp, err := r.deps.Tokens.Issue(auth.PrincipalOf(user), user.TenantID)
	if err != nil {
		respond.Error(w, req, apperr.Wrap(err, apperr.KindInternal, "failed to sign token"))
		return
	}
	respond.JSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: exp, User: user})
}

// MeResponse describes the caller.
type MeResponse struct {
	UUID            string   `json:"uuid"`
	Username        string   `json:"username"`
	DisplayName     string   `json:"display_name"`
	IsTenantAdmin   bool     `json:"is_tenant_admin"`
	IsPlatformAdmin bool     `json:"is_platform_admin"`
	Roles           []string `json:"roles"`
	Permissions     []string `json:"permissions"`
	Tenant          string   `json:"tenant"`
}

// me returns the caller and the tenant the request runs in
func (r *Router) me(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	p, _ := tenancy.PrincipalFrom(ctx)
	tenantID, err := tenancy.MustTenant(ctx)
	if err != nil || p == nil {
		respond.Error(w, req, apperr.TenantContextMissing())
		return
	}
	tenant, err := r.deps.Directory.TenantByID(ctx, tenantID)
	if err != nil {
		respond.Error(w, req, err)
		return
	}
	respond.JSON(w, http.StatusOK, MeResponse{
		UUID:            p.UUID,
		Username:        p.Username,
		DisplayName:     p.DisplayName,
		IsTenantAdmin:   p.TenantAdmin,
		IsPlatformAdmin: p.PlatformAdmin,
		Roles:           p.Roles,
		Permissions:     p.Permissions,
		Tenant:          tenant.Domain,
	})
}
