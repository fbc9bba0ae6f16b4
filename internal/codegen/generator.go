// Package codegen mints human-readable business codes from per-tenant rules.
package codegen

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/database"
	"github.com/xelth-com/riveredgego/internal/metrics"
	"github.com/xelth-com/riveredgego/internal/models"
)

type Generator struct {
	db  *gorm.DB
	loc *time.Location
}

// NewGenerator returns a generator that evaluates dates and resets in loc.
func NewGenerator(db *gorm.DB, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{db: db, loc: loc}
}

// Mint renders the next code of ruleCode for tenantID in its own transaction.
func (g *Generator) Mint(ctx context.Context, tenantID uint, ruleCode string, now time.Time) (string, error) {
	var code string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		code, err = g.MintTx(tx, tenantID, ruleCode, now)
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// MintTx mints inside the caller's transaction; the counter advance
// commits or rolls back with it.
func (g *Generator) MintTx(tx *gorm.DB, tenantID uint, ruleCode string, now time.Time) (string, error) {
	rule, err := g.loadRule(tx, tenantID, ruleCode)
	if err != nil {
		return "", err
	}
	counter, ok := rule.Counter()
	if !ok {
		return "", apperr.Validation("code rule %s has no counter", ruleCode)
	}

	seq, err := g.lockSequence(tx, tenantID, rule, counter, now)
	if err != nil {
		return "", err
	}

	value := seq.NextValue
	anchor := seq.ResetAnchor
	if resetDue(counter.Reset, anchor, now, g.loc) {
		value = counter.Start()
	}
	if now.After(anchor) {
		anchor = now
	}

	code := Render(rule.Components, now.In(g.loc), value)

	res := tx.Model(&models.CodeSequence{}).
		Where("id = ?", seq.ID).
		Updates(map[string]interface{}{
			"next_value":   value + counter.Step,
			"reset_anchor": anchor,
		})
	if res.Error != nil {
		return "", apperr.FromDB(res.Error, "code_sequence", "advance")
	}

	metrics.RecordMint(rule.RuleCode)
	return code, nil
}

// Preview renders the code the next mint would return, without advancing.
func (g *Generator) Preview(ctx context.Context, tenantID uint, ruleCode string, now time.Time) (string, error) {
	db := g.db.WithContext(ctx)
	rule, err := g.loadRule(db, tenantID, ruleCode)
	if err != nil {
		return "", err
	}
	counter, ok := rule.Counter()
	if !ok {
		return "", apperr.Validation("code rule %s has no counter", ruleCode)
	}

	value := counter.Start()
	var seq models.CodeSequence
	res := db.Where("tenant_id = ? AND rule_id = ?", tenantID, rule.ID).Limit(1).Find(&seq)
	if res.Error != nil {
		return "", apperr.FromDB(res.Error, "code_sequence", "load")
	}
	if res.RowsAffected > 0 && !resetDue(counter.Reset, seq.ResetAnchor, now, g.loc) {
		value = seq.NextValue
	}
	return Render(rule.Components, now.In(g.loc), value), nil
}

func (g *Generator) loadRule(tx *gorm.DB, tenantID uint, ruleCode string) (*models.CodeRule, error) {
	var rule models.CodeRule
	res := tx.Where("tenant_id = ? AND rule_code = ? AND is_active = ?", tenantID, ruleCode, true).
		Limit(1).Find(&rule)
	if res.Error != nil {
		return nil, apperr.FromDB(res.Error, "code_rule", "load")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindCodeRuleNotFound, "code rule %s is not defined", ruleCode)
	}
	return &rule, nil
}

// lockSequence returns the sequence row locked for this transaction,
// creating it with the rule's initial value on first use.
func (g *Generator) lockSequence(tx *gorm.DB, tenantID uint, rule *models.CodeRule, counter models.CodeComponent, now time.Time) (*models.CodeSequence, error) {
	seq, found, err := selectSequence(tx, tenantID, rule.ID)
	if err != nil || found {
		return seq, err
	}

	fresh := models.CodeSequence{
		TenantID:    tenantID,
		RuleID:      rule.ID,
		NextValue:   counter.Start(),
		ResetAnchor: now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, apperr.FromDB(err, "code_sequence", "create")
	}

	seq, found, err = selectSequence(tx, tenantID, rule.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.New(apperr.KindInternal, "code sequence for %s vanished", rule.RuleCode)
	}
	return seq, nil
}

func selectSequence(tx *gorm.DB, tenantID, ruleID uint) (*models.CodeSequence, bool, error) {
	q := tx.Where("tenant_id = ? AND rule_id = ?", tenantID, ruleID)
	if database.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var seq models.CodeSequence
	res := q.Limit(1).Find(&seq)
	if res.Error != nil {
		return nil, false, apperr.FromDB(res.Error, "code_sequence", "lock")
	}
	return &seq, res.RowsAffected > 0, nil
}

// resetDue reports whether now falls in a later period than anchor.
// Periods are compared in loc and never move backwards.
func resetDue(policy string, anchor, now time.Time, loc *time.Location) bool {
	if policy == "" || policy == models.ResetNever {
		return false
	}
	return periodKey(policy, now.In(loc)) > periodKey(policy, anchor.In(loc))
}

func periodKey(policy string, t time.Time) int {
	switch policy {
	case models.ResetDaily:
		return t.Year()*10000 + int(t.Month())*100 + t.Day()
	case models.ResetMonthly:
		return t.Year()*100 + int(t.Month())
	case models.ResetYearly:
		return t.Year()
	}
	return 0
}
