package tenancy

// Principal is the actor authenticated for one request.
type Principal struct {
	ID            uint
	UUID          string
	TenantID      *uint
	Username      string
	DisplayName   string
	Active        bool
	TenantAdmin   bool
	PlatformAdmin bool
	Roles         []string
	Permissions   []string
}

// BelongsTo reports whether the principal may act inside tenantID.
// Platform admins may act in any tenant.
func (p *Principal) BelongsTo(tenantID uint) bool {
	if p.PlatformAdmin {
		return true
	}
	return p.TenantID != nil && *p.TenantID == tenantID
}

// HasPermission reports whether the principal carries a permission code.
// Admins carry every permission.
func (p *Principal) HasPermission(code string) bool {
	if code == "" || p.PlatformAdmin || p.TenantAdmin {
		return true
	}
	for _, perm := range p.Permissions {
		if perm == code || perm == "*" {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds a role. Admins hold every role.
func (p *Principal) HasRole(role string) bool {
	if role == "" || p.PlatformAdmin || p.TenantAdmin {
		return true
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Name is the label written into audit rows.
func (p *Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}
