// Package statemachine validates and records status changes against
// per-tenant transition rules.
package statemachine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/logger"
	"github.com/xelth-com/riveredgego/internal/metrics"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/store"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// Event is published after a transition commits.
type Event struct {
	EntityType     string        `json:"entity_type"`
	EntityUUID     string        `json:"entity_uuid"`
	FromState      models.Status `json:"from_state"`
	ToState        models.Status `json:"to_state"`
	OperatorName   string        `json:"operator_name"`
	TransitionedAt time.Time     `json:"transitioned_at"`
}

// Notifier receives committed transitions, tagged with their tenant.
type Notifier interface {
	NotifyTransition(tenantID uint, ev Event)
}

// Related points at another document the transition concerns.
type Related struct {
	EntityType string
	UUID       string
}

// Options carry the audit fields of a transition. Operator defaults to the
// context's principal.
type Options struct {
	Operator *tenancy.Principal
	Reason   string
	Comment  string
	Related  *Related
}

type Engine struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

// NewEngine builds an engine. notifier may be nil.
func NewEngine(db *gorm.DB, notifier Notifier, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{db: db, notifier: notifier, now: now}
}

// Transition moves entity from one state to another if an active rule
// allows it, the operator holds the rule's capability and the rule's
// condition holds. The status write and its log row commit together.
func (e *Engine) Transition(ctx context.Context, entity models.Stateful, from, to string, opts Options) error {
	entityType := entity.EntityType()
	err := e.transition(ctx, entity, from, to, opts)
	if err != nil {
		metrics.RecordTransition(entityType, string(apperr.KindOf(err)))
		return err
	}
	metrics.RecordTransition(entityType, "ok")
	return nil
}

func (e *Engine) transition(ctx context.Context, entity models.Stateful, from, to string, opts Options) error {
	tenantID, err := tenancy.MustTenant(ctx)
	if err != nil {
		return err
	}
	base := entity.GetBase()
	if base.TenantID != tenantID {
		logger.FromContext(ctx).Error("tenant mismatch on transition",
			zap.String("entity", entity.EntityType()), zap.String("uuid", base.UUID))
		return apperr.TenantMismatch(entity.EntityType())
	}

	operator := opts.Operator
	if operator == nil {
		if p, ok := tenancy.PrincipalFrom(ctx); ok {
			operator = p
		}
	}
	if operator == nil {
		return apperr.New(apperr.KindPermissionDenied, "transition requires an operator")
	}

	fromState, ok := models.NormalizeStatus(from)
	if !ok {
		return apperr.Validation("unknown status %q", from)
	}
	toState, ok := models.NormalizeStatus(to)
	if !ok {
		return apperr.Validation("unknown status %q", to)
	}

	current := entity.GetStatus()
	if norm, ok := models.NormalizeStatus(string(current)); ok {
		current = norm
	}
	if current != fromState {
		return apperr.New(apperr.KindStatePreconditionFailed, "%s is in state %s, not %s", entity.EntityType(), current, fromState)
	}

	rule, err := e.findRule(ctx, tenantID, entity.EntityType(), fromState, toState)
	if err != nil {
		return err
	}
	if !operator.HasPermission(rule.RequiredPermission) || !operator.HasRole(rule.RequiredRole) {
		return apperr.New(apperr.KindStateTransitionDenied, "operator may not move %s from %s to %s", entity.EntityType(), fromState, toState)
	}

	cond, err := ParseCondition(rule.Condition)
	if err != nil {
		logger.FromContext(ctx).Error("stored transition condition is invalid", zap.Uint("rule_id", rule.ID), zap.Error(err))
		return apperr.New(apperr.KindStatePreconditionFailed, "transition condition cannot be evaluated")
	}
	if cond != nil {
		record, err := recordOf(entity)
		if err != nil {
			return apperr.Wrap(err, apperr.KindInternal, "failed to evaluate transition condition")
		}
		if !cond.Eval(record) {
			return apperr.New(apperr.KindStatePreconditionFailed, "transition condition not met")
		}
	}

	now := e.now()
	entry := &models.TransitionLog{
		TenantID:       tenantID,
		EntityType:     entity.EntityType(),
		EntityID:       base.ID,
		EntityUUID:     base.UUID,
		FromState:      string(fromState),
		ToState:        string(toState),
		Reason:         opts.Reason,
		Comment:        opts.Comment,
		OperatorID:     operator.ID,
		OperatorUUID:   operator.UUID,
		OperatorName:   operator.Name(),
		TransitionedAt: now,
	}
	if opts.Related != nil {
		entry.RelatedEntityType = opts.Related.EntityType
		entry.RelatedEntityUUID = opts.Related.UUID
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(entity).
			Where("tenant_id = ? AND status IN ?", tenantID, fromState.Spellings()).
			Updates(map[string]interface{}{"status": toState, "updated_at": now})
		if res.Error != nil {
			return apperr.FromDB(res.Error, entity.EntityType(), "update")
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindStatePreconditionFailed, "%s changed state concurrently", entity.EntityType())
		}
		return apperr.FromDB(tx.Create(entry).Error, "transition_log", "create")
	})
	if err != nil {
		return err
	}

	entity.SetStatus(toState)
	base.UpdatedAt = now

	logger.FromContext(ctx).Info("state transition",
		zap.String("entity", entity.EntityType()),
		zap.String("uuid", base.UUID),
		zap.String("from", string(fromState)),
		zap.String("to", string(toState)),
	)

	if e.notifier != nil {
		e.notifier.NotifyTransition(tenantID, Event{
			EntityType:     entity.EntityType(),
			EntityUUID:     base.UUID,
			FromState:      fromState,
			ToState:        toState,
			OperatorName:   operator.Name(),
			TransitionedAt: now,
		})
	}
	return nil
}

// Initialize appends the INITIAL log row for a freshly inserted record,
// inside the caller's transaction. No rule is consulted.
func (e *Engine) Initialize(tx *gorm.DB, entity models.Stateful, operator *tenancy.Principal) error {
	base := entity.GetBase()
	status := entity.GetStatus()
	if !status.Valid() {
		return apperr.Validation("initial status %q is not canonical", status)
	}

	entry := &models.TransitionLog{
		TenantID:       base.TenantID,
		EntityType:     entity.EntityType(),
		EntityID:       base.ID,
		EntityUUID:     base.UUID,
		ToState:        string(status),
		Reason:         models.TransitionReasonInitial,
		TransitionedAt: e.now(),
	}
	if operator != nil {
		entry.OperatorID = operator.ID
		entry.OperatorUUID = operator.UUID
		entry.OperatorName = operator.Name()
	}
	return apperr.FromDB(tx.Create(entry).Error, "transition_log", "create")
}

func (e *Engine) findRule(ctx context.Context, tenantID uint, entityType string, from, to models.Status) (*models.TransitionRule, error) {
	var rule models.TransitionRule
	res := e.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND from_state IN ? AND to_state IN ? AND is_active = ?",
			tenantID, entityType, from.Spellings(), to.Spellings(), true).
		Limit(1).Find(&rule)
	if res.Error != nil {
		return nil, apperr.FromDB(res.Error, "transition_rule", "load")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindStateTransitionDenied, "no rule allows %s from %s to %s", entityType, from, to)
	}
	return &rule, nil
}

// History lists the transitions of one record, oldest first.
func (e *Engine) History(ctx context.Context, entityType, entityUUID string) ([]models.TransitionLog, error) {
	q, err := store.New(e.db).Query(ctx, &models.TransitionLog{})
	if err != nil {
		return nil, err
	}
	var logs []models.TransitionLog
	err = q.Where("entity_type = ? AND entity_uuid = ?", entityType, entityUUID).
		Order("transitioned_at ASC, id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, apperr.FromDB(err, "transition_log", "list")
	}
	return logs, nil
}
