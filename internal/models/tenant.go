package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TenantStatus is the operational state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantExpired   TenantStatus = "expired"
	TenantSuspended TenantStatus = "suspended"
)

// TenantPlan bounds the default quotas.
type TenantPlan string

const (
	PlanTrial        TenantPlan = "trial"
	PlanBasic        TenantPlan = "basic"
	PlanProfessional TenantPlan = "professional"
	PlanEnterprise   TenantPlan = "enterprise"
)

// PlanQuota returns the default user and storage limits for a plan.
func PlanQuota(plan TenantPlan) (maxUsers int, maxStorageMB int64) {
	switch plan {
	case PlanBasic:
		return 50, 10240
	case PlanProfessional:
		return 200, 51200
	case PlanEnterprise:
		return 1000, 512000
	default:
		return 10, 1024
	}
}

// Tenant is an isolated organization. Its wire identifier is the domain slug.
type Tenant struct {
	ID           uint              `gorm:"primaryKey" json:"-"`
	Domain       string            `gorm:"type:varchar(63);not null;uniqueIndex" json:"domain"`
	Name         string            `gorm:"type:varchar(200);not null" json:"name"`
	Status       TenantStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	Plan         TenantPlan        `gorm:"type:varchar(20);not null" json:"plan"`
	Settings     datatypes.JSONMap `json:"settings"`
	MaxUsers     int               `gorm:"not null" json:"max_users"`
	MaxStorageMB int64             `gorm:"not null" json:"max_storage_mb"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Tenant) TableName() string {
	return "infra_tenants"
}

// Usable reports whether requests may run inside the tenant at now.
func (t *Tenant) Usable(now time.Time) bool {
	if t.Status != TenantActive {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}
