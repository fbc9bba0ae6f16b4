package statemachine

import (
	"strings"

	"gorm.io/datatypes"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/models"
)

// PrepareRule normalizes a rule's states and checks its condition.
func PrepareRule(rule *models.TransitionRule) error {
	rule.EntityType = strings.TrimSpace(rule.EntityType)
	if rule.EntityType == "" {
		return apperr.Validation("entity_type is required")
	}
	from, ok := models.NormalizeStatus(string(rule.FromState))
	if !ok {
		return apperr.Validation("unknown from_state %q", rule.FromState)
	}
	to, ok := models.NormalizeStatus(string(rule.ToState))
	if !ok {
		return apperr.Validation("unknown to_state %q", rule.ToState)
	}
	if from == to {
		return apperr.Validation("from_state and to_state must differ")
	}
	rule.FromState, rule.ToState = from, to

	if _, err := ParseCondition(rule.Condition); err != nil {
		return err
	}
	return nil
}

type edge struct {
	from, to   models.Status
	permission string
	condition  string
}

func lifecycle(entityType string, extra ...edge) []models.TransitionRule {
	approve := entityType + ":approve"
	edges := []edge{
		{from: models.StatusDraft, to: models.StatusPendingReview},
		{from: models.StatusPendingReview, to: models.StatusDraft},
		{from: models.StatusPendingReview, to: models.StatusAudited, permission: approve},
		{from: models.StatusPendingReview, to: models.StatusRejected, permission: approve},
		{from: models.StatusRejected, to: models.StatusDraft},
		{from: models.StatusDraft, to: models.StatusCancelled},
	}
	edges = append(edges, extra...)

	rules := make([]models.TransitionRule, 0, len(edges))
	for _, e := range edges {
		rule := models.TransitionRule{
			EntityType:         entityType,
			FromState:          e.from,
			ToState:            e.to,
			RequiredPermission: e.permission,
			IsActive:           true,
		}
		if e.condition != "" {
			rule.Condition = datatypes.JSON(e.condition)
		}
		rules = append(rules, rule)
	}
	return rules
}

// DefaultRules is the rule set seeded into a new tenant.
func DefaultRules() []models.TransitionRule {
	rules := lifecycle("demand",
		edge{from: models.StatusAudited, to: models.StatusPartialConverted},
		edge{from: models.StatusAudited, to: models.StatusFullConverted},
		edge{from: models.StatusPartialConverted, to: models.StatusFullConverted},
	)
	rules = append(rules, lifecycle("sales_order",
		edge{from: models.StatusAudited, to: models.StatusConfirmed, condition: `{"field":"total_amount","op":"gt","value":0}`},
		edge{from: models.StatusConfirmed, to: models.StatusInProgress},
		edge{from: models.StatusInProgress, to: models.StatusCompleted},
	)...)
	return rules
}
