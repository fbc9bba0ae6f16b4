package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrPlatformAdminTenant = errors.New("platform admins have no tenant and tenant users must have one")

// User is an account. Tenant users carry a TenantID; platform admins do not.
type User struct {
	ID              uint                        `gorm:"primaryKey" json:"-"`
	UUID            string                      `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	TenantID        *uint                       `gorm:"index" json:"-"`
	Username        string                      `gorm:"type:varchar(100);not null" json:"username"`
	DisplayName     string                      `gorm:"type:varchar(200)" json:"display_name"`
	Email           string                      `gorm:"type:varchar(200)" json:"email,omitempty"`
	PasswordHash    string                      `gorm:"not null" json:"-"`
	IsActive        bool                        `gorm:"not null" json:"is_active"`
	IsTenantAdmin   bool                        `gorm:"not null" json:"is_tenant_admin"`
	IsPlatformAdmin bool                        `gorm:"not null" json:"is_platform_admin"`
	Roles           datatypes.JSONSlice[string] `json:"roles"`
	Permissions     datatypes.JSONSlice[string] `json:"permissions"`
	LastLogin       *time.Time                  `json:"last_login,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "infra_users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps the platform-admin / tenant split consistent.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.IsPlatformAdmin != (u.TenantID == nil) {
		return ErrPlatformAdminTenant
	}
	return nil
}
