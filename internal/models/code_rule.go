package models

import (
	"time"

	"gorm.io/datatypes"
)

// Component kinds of a code rule.
const (
	ComponentText    = "text"
	ComponentDate    = "date"
	ComponentCounter = "counter"
)

// Counter reset periods.
const (
	ResetNever   = "never"
	ResetDaily   = "daily"
	ResetMonthly = "monthly"
	ResetYearly  = "yearly"
)

// CodeComponent is one ordered part of a rendered business code.
type CodeComponent struct {
	Type string `json:"type"`

	// text
	Value string `json:"value,omitempty"`

	// date: YYYY, YYYYMM, YYYYMMDD
	Format string `json:"format,omitempty"`

	// counter
	Width   int    `json:"width,omitempty"`
	Pad     bool   `json:"pad,omitempty"`
	PadChar string `json:"pad_char,omitempty"`
	Initial *int64 `json:"initial,omitempty"`
	Step    int64  `json:"step,omitempty"`
	Reset   string `json:"reset,omitempty"`
}

// CodeRule describes how a business code is rendered for one kind of record.
// Expression keeps the legacy template a rule was imported from; only
// Components are evaluated.
type CodeRule struct {
	Base
	RuleCode    string                             `gorm:"type:varchar(50);not null" json:"rule_code" validate:"required,max=50"`
	Name        string                             `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	Description string                             `gorm:"type:text" json:"description"`
	Expression  string                             `gorm:"type:varchar(200)" json:"expression,omitempty" validate:"max=200"`
	Components  datatypes.JSONSlice[CodeComponent] `gorm:"not null" json:"components" validate:"required,min=1"`
	IsActive    bool                               `gorm:"not null" json:"is_active"`
}

func (CodeRule) TableName() string { return "core_code_rules" }

func (r *CodeRule) CodeColumn() string          { return "rule_code" }
func (r *CodeRule) BusinessCode() string        { return r.RuleCode }
func (r *CodeRule) SetBusinessCode(code string) { r.RuleCode = code }

// Counter returns the rule's counter component.
// Start is the first value of a counter; an unset initial starts at 1.
func (c CodeComponent) Start() int64 {
	if c.Initial == nil {
		return 1
	}
	return *c.Initial
}

func (r *CodeRule) Counter() (CodeComponent, bool) {
	for _, c := range r.Components {
		if c.Type == ComponentCounter {
			return c, true
		}
	}
	return CodeComponent{}, false
}

// CodeSequence is the persisted counter of one rule in one tenant.
// NextValue is the value the next mint will emit.
type CodeSequence struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	TenantID    uint      `gorm:"not null;uniqueIndex:ux_code_sequences_tenant_rule,priority:1" json:"-"`
	RuleID      uint      `gorm:"not null;uniqueIndex:ux_code_sequences_tenant_rule,priority:2" json:"-"`
	NextValue   int64     `gorm:"not null" json:"next_value"`
	ResetAnchor time.Time `gorm:"not null" json:"reset_anchor"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CodeSequence) TableName() string { return "core_code_sequences" }
