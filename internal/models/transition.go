package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrTransitionLogImmutable = errors.New("transition logs are append-only")

// TransitionReasonInitial marks the log row written when a record is created.
const TransitionReasonInitial = "INITIAL"

// TransitionRule allows one edge of an entity type's state machine.
type TransitionRule struct {
	Base
	EntityType         string         `gorm:"type:varchar(50);not null;index" json:"entity_type" validate:"required,max=50"`
	FromState          Status         `gorm:"type:varchar(30);not null" json:"from_state" validate:"required"`
	ToState            Status         `gorm:"type:varchar(30);not null" json:"to_state" validate:"required"`
	Condition          datatypes.JSON `json:"condition,omitempty"`
	RequiredPermission string         `gorm:"type:varchar(100)" json:"required_permission,omitempty" validate:"max=100"`
	RequiredRole       string         `gorm:"type:varchar(100)" json:"required_role,omitempty" validate:"max=100"`
	IsActive           bool           `gorm:"not null" json:"is_active"`
	Description        string         `gorm:"type:text" json:"description,omitempty"`
}

func (TransitionRule) TableName() string { return "core_state_transition_rules" }

// TransitionLog is an append-only audit row for one state change.
type TransitionLog struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	UUID              string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	TenantID          uint      `gorm:"not null;index" json:"-"`
	EntityType        string    `gorm:"type:varchar(50);not null;index:idx_transition_logs_entity,priority:1" json:"entity_type"`
	EntityID          uint      `gorm:"not null;index:idx_transition_logs_entity,priority:2" json:"-"`
	EntityUUID        string    `gorm:"type:varchar(36);not null;index" json:"entity_uuid"`
	FromState         string    `gorm:"type:varchar(30)" json:"from_state"`
	ToState           string    `gorm:"type:varchar(30);not null" json:"to_state"`
	Reason            string    `gorm:"type:varchar(200)" json:"reason,omitempty"`
	Comment           string    `gorm:"type:text" json:"comment,omitempty"`
	OperatorID        uint      `gorm:"not null" json:"-"`
	OperatorUUID      string    `gorm:"type:varchar(36)" json:"operator_uuid"`
	OperatorName      string    `gorm:"type:varchar(200)" json:"operator_name"`
	RelatedEntityType string    `gorm:"type:varchar(50)" json:"related_entity_type,omitempty"`
	RelatedEntityUUID string    `gorm:"type:varchar(36)" json:"related_entity_uuid,omitempty"`
	TransitionedAt    time.Time `gorm:"not null;index" json:"transitioned_at"`
	CreatedAt         time.Time `json:"created_at"`
}

func (TransitionLog) TableName() string { return "core_state_transition_logs" }

func (l *TransitionLog) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == "" {
		l.UUID = uuid.NewString()
	}
	return nil
}

func (l *TransitionLog) BeforeUpdate(tx *gorm.DB) error { return ErrTransitionLogImmutable }
func (l *TransitionLog) BeforeDelete(tx *gorm.DB) error { return ErrTransitionLogImmutable }
