// Package tenancy carries the active tenant and the authenticated principal
// through a request's context tree. Every call below the request boundary
// takes the context as its first argument; goroutines started with a derived
// context see the same tenant, and independent requests never share one.
package tenancy

import (
	"context"

	"github.com/xelth-com/riveredgego/internal/apperr"
)

type contextKey string

const (
	tenantKey    contextKey = "tenant_id"
	principalKey contextKey = "principal"
)

// tenantValue distinguishes an explicit clear from an unset key.
type tenantValue struct {
	id  uint
	set bool
}

// WithTenant returns a context whose active tenant is id.
func WithTenant(ctx context.Context, id uint) context.Context {
	return context.WithValue(ctx, tenantKey, tenantValue{id: id, set: id != 0})
}

// Clear returns a context with no active tenant, masking any parent value.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, tenantKey, tenantValue{})
}

// TenantID returns the active tenant, if any.
func TenantID(ctx context.Context) (uint, bool) {
	v, ok := ctx.Value(tenantKey).(tenantValue)
	if !ok || !v.set {
		return 0, false
	}
	return v.id, true
}

// MustTenant returns the active tenant or TENANT_CONTEXT_MISSING.
func MustTenant(ctx context.Context) (uint, error) {
	id, ok := TenantID(ctx)
	if !ok {
		return 0, apperr.TenantContextMissing()
	}
	return id, nil
}

// Run executes fn with id as the active tenant. The caller's context is
// untouched, so the previous value is back in effect when Run returns.
func Run(ctx context.Context, id uint, fn func(ctx context.Context) error) error {
	return fn(WithTenant(ctx, id))
}

// WithPrincipal attaches the authenticated principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
