package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Status is a canonical lifecycle state.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusPendingReview    Status = "PENDING_REVIEW"
	StatusAudited          Status = "AUDITED"
	StatusRejected         Status = "REJECTED"
	StatusConfirmed        Status = "CONFIRMED"
	StatusReleased         Status = "RELEASED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
	StatusPartialConverted Status = "PARTIAL_CONVERTED"
	StatusFullConverted    Status = "FULL_CONVERTED"
)

// Statuses lists the canonical vocabulary in lifecycle order.
var Statuses = []Status{
	StatusDraft, StatusPendingReview, StatusAudited, StatusRejected,
	StatusConfirmed, StatusReleased, StatusInProgress, StatusCompleted,
	StatusCancelled, StatusPartialConverted, StatusFullConverted,
}

// statusAliases maps legacy spellings (lowercase and localized labels)
// to canonical values. Keys are compared after trimming and lowercasing.
var statusAliases = map[string]Status{
	"draft": StatusDraft,
	"草稿":    StatusDraft,
	"新建":    StatusDraft,

	"pending_review": StatusPendingReview,
	"pending":        StatusPendingReview,
	"submitted":      StatusPendingReview,
	"待审核":            StatusPendingReview,
	"审核中":            StatusPendingReview,
	"已提交":            StatusPendingReview,

	"audited":  StatusAudited,
	"approved": StatusAudited,
	"已审核":      StatusAudited,
	"审核通过":     StatusAudited,

	"rejected": StatusRejected,
	"已驳回":      StatusRejected,
	"驳回":       StatusRejected,

	"confirmed": StatusConfirmed,
	"已确认":       StatusConfirmed,

	"released": StatusReleased,
	"已下达":      StatusReleased,

	"in_progress": StatusInProgress,
	"进行中":         StatusInProgress,
	"执行中":         StatusInProgress,
	"生产中":         StatusInProgress,

	"completed": StatusCompleted,
	"done":      StatusCompleted,
	"已完成":       StatusCompleted,

	"cancelled": StatusCancelled,
	"canceled":  StatusCancelled,
	"已取消":       StatusCancelled,

	"partial_converted": StatusPartialConverted,
	"部分下推":              StatusPartialConverted,

	"full_converted": StatusFullConverted,
	"已下推":            StatusFullConverted,
	"全部下推":           StatusFullConverted,
}

// NormalizeStatus maps any accepted spelling to its canonical status.
func NormalizeStatus(raw string) (Status, bool) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// Valid reports whether s is canonical.
func (s Status) Valid() bool {
	for _, c := range Statuses {
		if c == s {
			return true
		}
	}
	return false
}

// Scan normalizes legacy values on read.
func (s *Status) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*s = ""
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", value)
	}
	if raw == "" {
		*s = ""
		return nil
	}
	norm, ok := NormalizeStatus(raw)
	if !ok {
		return fmt.Errorf("unknown status %q", raw)
	}
	*s = norm
	return nil
}

// Value refuses to write anything but canonical values.
func (s Status) Value() (driver.Value, error) {
	if s == "" {
		return "", nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("non-canonical status %q", string(s))
	}
	return string(s), nil
}

// Spellings returns every stored spelling of s, canonical first. Used to
// match rows written before normalization.
func (s Status) Spellings() []string {
	out := []string{string(s)}
	for alias, target := range statusAliases {
		if target == s {
			out = append(out, alias)
		}
	}
	return out
}
