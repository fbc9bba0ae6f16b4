package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by every tenant-owned table.
// ID and TenantID stay internal; UUID is the only identifier on the wire.
type Base struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	UUID      string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	TenantID  uint           `gorm:"not null;index" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// GetBase exposes the embedded base to generic code.
func (b *Base) GetBase() *Base { return b }

// BeforeCreate assigns the opaque identifier.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	return nil
}

// IsDeleted reports whether the row is soft-deleted.
func (b *Base) IsDeleted() bool { return b.DeletedAt.Valid }

// Entity is any tenant-owned model.
type Entity interface {
	GetBase() *Base
	TableName() string
}

// Coded entities carry a business code unique within their tenant.
type Coded interface {
	Entity
	CodeColumn() string
	BusinessCode() string
	SetBusinessCode(code string)
}

// Stateful entities have a lifecycle driven by transition rules.
type Stateful interface {
	Entity
	EntityType() string
	GetStatus() Status
	SetStatus(s Status)
}
