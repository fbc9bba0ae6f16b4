package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/metrics"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// TenantHeader selects the tenant for credentials that carry none.
const TenantHeader = "X-Tenant-ID"

type claimsKey struct{}

// ClaimsFrom returns the verified credential of the request.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// Boundary authenticates requests and binds them to a tenant.
type Boundary struct {
	tokens    *auth.Tokens
	directory *auth.Directory
	now       func() time.Time
}

func NewBoundary(tokens *auth.Tokens, directory *auth.Directory, now func() time.Time) *Boundary {
	if now == nil {
		now = time.Now
	}
	return &Boundary{tokens: tokens, directory: directory, now: now}
}

func bearer(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// authenticate verifies the credential and loads an active principal whose
// record matches the credential kind.
func (b *Boundary) authenticate(r *http.Request) (*auth.Claims, *tenancy.Principal, error) {
	token, ok := bearer(r)
	if !ok {
		return nil, nil, apperr.New(apperr.KindAuthInvalid, "authorization header required")
	}
	claims, err := b.tokens.Verify(token)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindAuthInvalid, "invalid or expired token")
	}
	userID, _ := claims.UserID()

	principal, err := b.directory.Principal(r.Context(), userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil, apperr.New(apperr.KindAuthInvalid, "unknown principal")
		}
		return nil, nil, err
	}
	if !principal.Active {
		return nil, nil, apperr.New(apperr.KindAuthInvalid, "principal is inactive")
	}
	if (claims.Kind == auth.KindPlatform) != principal.PlatformAdmin {
		return nil, nil, apperr.New(apperr.KindAuthInvalid, "credential kind does not match principal")
	}
	return claims, principal, nil
}

// resolveTenant picks the tenant a request runs in: the credential's own
// tenant, else the selector header.
func (b *Boundary) resolveTenant(r *http.Request, claims *auth.Claims, p *tenancy.Principal) (*auth.TenantInfo, error) {
	ctx := r.Context()
	var (
		tenant *auth.TenantInfo
		err    error
	)
	if claims.TenantID != nil {
		if !p.BelongsTo(*claims.TenantID) {
			metrics.RecordAccessDenied("membership")
			return nil, apperr.New(apperr.KindTenantForbidden, "principal does not belong to the tenant")
		}
		tenant, err = b.directory.TenantByID(ctx, *claims.TenantID)
	} else {
		selector := strings.TrimSpace(r.Header.Get(TenantHeader))
		if selector == "" {
			metrics.RecordAccessDenied("selector_missing")
			return nil, apperr.Validation("%s header is required", TenantHeader)
		}
		tenant, err = b.directory.Tenant(ctx, selector)
	}
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			metrics.RecordAccessDenied("unknown_tenant")
			return nil, apperr.New(apperr.KindTenantForbidden, "tenant not available")
		}
		return nil, err
	}
	if !p.BelongsTo(tenant.ID) {
		metrics.RecordAccessDenied("membership")
		return nil, apperr.New(apperr.KindTenantForbidden, "principal does not belong to the tenant")
	}
	if !tenant.Usable(b.now()) {
		metrics.RecordAccessDenied("tenant_inactive")
		return nil, apperr.New(apperr.KindTenantForbidden, "tenant is %s or expired", tenant.Status)
	}
	return tenant, nil
}

// Tenant guards tenant endpoints. The handler runs with the tenant, the
// principal and a tagged logger in its context; all of it ends with the
// request.
func (b *Boundary) Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, principal, err := b.authenticate(r)
		if err != nil {
			metrics.RecordAccessDenied("credential")
			respond.Error(w, r, err)
			return
		}
		tenant, err := b.resolveTenant(r, claims, principal)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		ctx := tenancy.WithTenant(r.Context(), tenant.ID)
		ctx = tenancy.WithPrincipal(ctx, principal)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(
			zap.Uint("tenant_id", tenant.ID),
			zap.Uint("user_id", principal.ID),
		))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlatformAdmin guards administrative endpoints. No tenant is bound.
func (b *Boundary) PlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, principal, err := b.authenticate(r)
		if err != nil {
			metrics.RecordAccessDenied("credential")
			respond.Error(w, r, err)
			return
		}
		if claims.Kind != auth.KindPlatform {
			metrics.RecordAccessDenied("not_platform_admin")
			respond.Fail(w, r, apperr.KindPermissionDenied, "platform administrator credential required")
			return
		}

		ctx := tenancy.WithPrincipal(r.Context(), principal)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(zap.Uint("user_id", principal.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminWrites lets any tenant member read but requires a tenant or
// platform administrator for every other method. It runs inside Tenant.
func (b *Boundary) AdminWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		p, ok := tenancy.PrincipalFrom(r.Context())
		if !ok || !(p.TenantAdmin || p.PlatformAdmin) {
			metrics.RecordAccessDenied("not_tenant_admin")
			respond.Fail(w, r, apperr.KindPermissionDenied, "tenant administrator required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
