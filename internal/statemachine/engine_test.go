package statemachine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/tenancy"
	"github.com/xelth-com/riveredgego/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events map[uint][]Event
}

func (n *recordingNotifier) NotifyTransition(tenantID uint, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = make(map[uint][]Event)
	}
	n.events[tenantID] = append(n.events[tenantID], ev)
}

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	notifier *recordingNotifier
	tenant   *models.Tenant
	user     *models.User
	ctx      context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	user := testutil.CreateUser(t, db, tenant, "alice")
	notifier := &recordingNotifier{}

	return &fixture{
		db:       db,
		engine:   NewEngine(db, notifier, time.Now),
		notifier: notifier,
		tenant:   tenant,
		user:     user,
		ctx:      testutil.TenantContext(tenant, user),
	}
}

func (f *fixture) demand(t *testing.T, status models.Status, amount int64) *models.Demand {
	t.Helper()
	d := &models.Demand{
		Name:          "X",
		DemandCode:    "DM-" + time.Now().Format("150405.000000000"),
		DemandType:    models.DemandTypeSalesOrder,
		TotalQuantity: decimal.NewFromInt(1),
		TotalAmount:   decimal.NewFromInt(amount),
		Status:        status,
	}
	d.TenantID = f.tenant.ID
	if err := f.db.Create(d).Error; err != nil {
		t.Fatalf("create demand: %v", err)
	}
	return d
}

func (f *fixture) rule(t *testing.T, rule models.TransitionRule) {
	t.Helper()
	rule.TenantID = f.tenant.ID
	rule.IsActive = true
	if err := PrepareRule(&rule); err != nil {
		t.Fatalf("prepare rule: %v", err)
	}
	if err := f.db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}
}

func (f *fixture) logCount(t *testing.T, d *models.Demand) int64 {
	t.Helper()
	var n int64
	f.db.Model(&models.TransitionLog{}).Where("entity_uuid = ?", d.UUID).Count(&n)
	return n
}

func (f *fixture) reload(t *testing.T, d *models.Demand) *models.Demand {
	t.Helper()
	var got models.Demand
	if err := f.db.First(&got, d.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	return &got
}

func TestTransitionSuccess(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusPendingReview})
	d := f.demand(t, models.StatusDraft, 10)
	before := f.reload(t, d).UpdatedAt

	time.Sleep(2 * time.Millisecond)
	err := f.engine.Transition(f.ctx, d, "DRAFT", "PENDING_REVIEW", Options{Reason: "submit"})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	got := f.reload(t, d)
	if got.Status != models.StatusPendingReview {
		t.Errorf("status = %s", got.Status)
	}
	if !got.UpdatedAt.After(before) {
		t.Errorf("updated_at did not advance: %v -> %v", before, got.UpdatedAt)
	}
	if d.Status != models.StatusPendingReview {
		t.Error("in-memory record not updated")
	}

	var logs []models.TransitionLog
	f.db.Where("entity_uuid = ?", d.UUID).Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(logs))
	}
	l := logs[0]
	if l.FromState != "DRAFT" || l.ToState != "PENDING_REVIEW" || l.OperatorID != f.user.ID || l.Reason != "submit" {
		t.Errorf("unexpected log row: %+v", l)
	}
	if l.TenantID != f.tenant.ID || l.OperatorName != "alice" {
		t.Errorf("log row lacks tenant/operator: %+v", l)
	}

	events := f.notifier.events[f.tenant.ID]
	if len(events) != 1 || events[0].ToState != models.StatusPendingReview {
		t.Errorf("expected one notification, got %+v", f.notifier.events)
	}
}

func TestTransitionWithoutRuleIsForbidden(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusPendingReview})
	d := f.demand(t, models.StatusDraft, 10)

	err := f.engine.Transition(f.ctx, d, "DRAFT", "COMPLETED", Options{})
	if !apperr.Is(err, apperr.KindStateTransitionDenied) {
		t.Fatalf("expected STATE_TRANSITION_FORBIDDEN, got %v", err)
	}
	if got := f.reload(t, d); got.Status != models.StatusDraft {
		t.Errorf("status changed to %s", got.Status)
	}
	if n := f.logCount(t, d); n != 0 {
		t.Errorf("expected no log rows, got %d", n)
	}
	if len(f.notifier.events) != 0 {
		t.Error("no event should be published")
	}
}

func TestTransitionPreconditions(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusPendingReview})
	d := f.demand(t, models.StatusDraft, 10)

	// Caller's view of the current state is wrong.
	err := f.engine.Transition(f.ctx, d, "AUDITED", "PENDING_REVIEW", Options{})
	if !apperr.Is(err, apperr.KindStatePreconditionFailed) {
		t.Errorf("expected STATE_PRECONDITION_FAILED, got %v", err)
	}

	// Unknown vocabulary.
	err = f.engine.Transition(f.ctx, d, "DRAFT", "FLYING", Options{})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected VALIDATION, got %v", err)
	}

	// Double submit: the second attempt sees the new state.
	if err := f.engine.Transition(f.ctx, d, "DRAFT", "PENDING_REVIEW", Options{}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	err = f.engine.Transition(f.ctx, d, "DRAFT", "PENDING_REVIEW", Options{})
	if !apperr.Is(err, apperr.KindStatePreconditionFailed) {
		t.Errorf("expected STATE_PRECONDITION_FAILED on double submit, got %v", err)
	}
	if n := f.logCount(t, d); n != 1 {
		t.Errorf("expected exactly one log row, got %d", n)
	}
}

func TestTransitionLostRace(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusPendingReview})
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusCancelled})
	d := f.demand(t, models.StatusDraft, 10)

	// A stale copy loaded before another request moved the record.
	stale := f.reload(t, d)
	if err := f.engine.Transition(f.ctx, d, "DRAFT", "CANCELLED", Options{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	err := f.engine.Transition(f.ctx, stale, "DRAFT", "PENDING_REVIEW", Options{})
	if !apperr.Is(err, apperr.KindStatePreconditionFailed) {
		t.Fatalf("expected STATE_PRECONDITION_FAILED, got %v", err)
	}
	if got := f.reload(t, d); got.Status != models.StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}
	if n := f.logCount(t, d); n != 1 {
		t.Errorf("expected one log row, got %d", n)
	}
}

func TestTransitionCapability(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{
		EntityType:         "demand",
		FromState:          models.StatusPendingReview,
		ToState:            models.StatusAudited,
		RequiredPermission: "demand:approve",
	})
	f.rule(t, models.TransitionRule{
		EntityType:   "demand",
		FromState:    models.StatusPendingReview,
		ToState:      models.StatusRejected,
		RequiredRole: "auditor",
	})
	d := f.demand(t, models.StatusPendingReview, 10)

	for _, to := range []string{"AUDITED", "REJECTED"} {
		err := f.engine.Transition(f.ctx, d, "PENDING_REVIEW", to, Options{})
		if !apperr.Is(err, apperr.KindStateTransitionDenied) {
			t.Errorf("%s without capability: expected STATE_TRANSITION_FORBIDDEN, got %v", to, err)
		}
	}

	approver := testutil.Principal(f.user)
	approver.Permissions = []string{"demand:approve"}
	if err := f.engine.Transition(f.ctx, d, "PENDING_REVIEW", "AUDITED", Options{Operator: approver}); err != nil {
		t.Errorf("approver should pass: %v", err)
	}

	d2 := f.demand(t, models.StatusPendingReview, 10)
	admin := testutil.Principal(f.user)
	admin.TenantAdmin = true
	if err := f.engine.Transition(f.ctx, d2, "PENDING_REVIEW", "REJECTED", Options{Operator: admin}); err != nil {
		t.Errorf("tenant admin should pass: %v", err)
	}
}

func TestTransitionCondition(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{
		EntityType: "demand",
		FromState:  models.StatusDraft,
		ToState:    models.StatusPendingReview,
		Condition:  datatypes.JSON(`{"all":[{"field":"total_amount","op":"gt","value":0},{"field":"name","op":"exists"}]}`),
	})

	empty := f.demand(t, models.StatusDraft, 0)
	err := f.engine.Transition(f.ctx, empty, "DRAFT", "PENDING_REVIEW", Options{})
	if !apperr.Is(err, apperr.KindStatePreconditionFailed) {
		t.Errorf("expected STATE_PRECONDITION_FAILED, got %v", err)
	}
	if n := f.logCount(t, empty); n != 0 {
		t.Errorf("expected no log row, got %d", n)
	}

	funded := f.demand(t, models.StatusDraft, 100)
	if err := f.engine.Transition(f.ctx, funded, "DRAFT", "PENDING_REVIEW", Options{}); err != nil {
		t.Errorf("condition should hold: %v", err)
	}
}

func TestTransitionNormalizesLegacySpellings(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: "待审核", ToState: "已审核"})
	d := f.demand(t, models.StatusDraft, 10)

	// A row written before normalization still carries the localized label.
	if err := f.db.Exec("UPDATE mes_demands SET status = ? WHERE id = ?", "待审核", d.ID).Error; err != nil {
		t.Fatalf("seed legacy status: %v", err)
	}
	legacy := f.reload(t, d)
	if legacy.Status != models.StatusPendingReview {
		t.Fatalf("legacy status not normalized on read: %s", legacy.Status)
	}

	if err := f.engine.Transition(f.ctx, legacy, "pending", "approved", Options{}); err != nil {
		t.Fatalf("transition from legacy row: %v", err)
	}

	var raw string
	f.db.Raw("SELECT status FROM mes_demands WHERE id = ?", d.ID).Scan(&raw)
	if raw != "AUDITED" {
		t.Errorf("new write should be canonical, got %q", raw)
	}
}

func TestTransitionRequiresOwnTenantAndOperator(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusPendingReview})
	d := f.demand(t, models.StatusDraft, 10)

	other := testutil.CreateTenant(t, f.db, "globex")
	foreignCtx := tenancy.WithPrincipal(tenancy.WithTenant(context.Background(), other.ID), testutil.Principal(f.user))
	if err := f.engine.Transition(foreignCtx, d, "DRAFT", "PENDING_REVIEW", Options{}); !apperr.Is(err, apperr.KindTenantMismatch) {
		t.Errorf("expected TENANT_MISMATCH, got %v", err)
	}

	noOperator := tenancy.WithTenant(context.Background(), f.tenant.ID)
	if err := f.engine.Transition(noOperator, d, "DRAFT", "PENDING_REVIEW", Options{}); !apperr.Is(err, apperr.KindPermissionDenied) {
		t.Errorf("expected PERMISSION_DENIED, got %v", err)
	}

	if err := f.engine.Transition(context.Background(), d, "DRAFT", "PENDING_REVIEW", Options{}); !apperr.Is(err, apperr.KindTenantContextMissing) {
		t.Errorf("expected TENANT_CONTEXT_MISSING, got %v", err)
	}
}

func TestInitializeAndHistory(t *testing.T) {
	f := setup(t)
	f.rule(t, models.TransitionRule{EntityType: "demand", FromState: models.StatusDraft, ToState: models.StatusPendingReview})
	d := f.demand(t, models.StatusDraft, 10)

	if err := f.engine.Initialize(f.db, d, testutil.Principal(f.user)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.engine.Transition(f.ctx, d, "DRAFT", "PENDING_REVIEW", Options{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	history, err := f.engine.History(f.ctx, "demand", d.UUID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(history))
	}
	if history[0].Reason != models.TransitionReasonInitial || history[0].FromState != "" || history[0].ToState != "DRAFT" {
		t.Errorf("unexpected initial row: %+v", history[0])
	}
	if history[1].ToState != "PENDING_REVIEW" {
		t.Errorf("unexpected second row: %+v", history[1])
	}

	other := testutil.CreateTenant(t, f.db, "globex")
	foreign, err := f.engine.History(tenancy.WithTenant(context.Background(), other.ID), "demand", d.UUID)
	if err != nil || len(foreign) != 0 {
		t.Errorf("history must be tenant scoped, got %d rows, %v", len(foreign), err)
	}
}

func TestTransitionLogIsImmutable(t *testing.T) {
	f := setup(t)
	d := f.demand(t, models.StatusDraft, 10)
	if err := f.engine.Initialize(f.db, d, testutil.Principal(f.user)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var entry models.TransitionLog
	if err := f.db.Where("entity_uuid = ?", d.UUID).First(&entry).Error; err != nil {
		t.Fatalf("load log: %v", err)
	}

	entry.Comment = "rewritten"
	if err := f.db.Save(&entry).Error; err == nil {
		t.Error("save on a log row must fail")
	}
	if err := f.db.Model(&entry).Update("comment", "rewritten").Error; err == nil {
		t.Error("update on a log row must fail")
	}
	if err := f.db.Delete(&entry).Error; err == nil {
		t.Error("delete on a log row must fail")
	}
	if n := f.logCount(t, d); n != 1 {
		t.Errorf("log row count changed to %d", n)
	}
}

func TestPrepareRule(t *testing.T) {
	ok := models.TransitionRule{EntityType: "demand", FromState: "草稿", ToState: "pending"}
	if err := PrepareRule(&ok); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if ok.FromState != models.StatusDraft || ok.ToState != models.StatusPendingReview {
		t.Errorf("states not normalized: %s -> %s", ok.FromState, ok.ToState)
	}

	bad := []models.TransitionRule{
		{EntityType: "", FromState: "DRAFT", ToState: "AUDITED"},
		{EntityType: "demand", FromState: "DRAFT", ToState: "DRAFT"},
		{EntityType: "demand", FromState: "NOPE", ToState: "AUDITED"},
		{EntityType: "demand", FromState: "DRAFT", ToState: "AUDITED", Condition: datatypes.JSON(`{"field":"x","op":"like","value":1}`)},
	}
	for i := range bad {
		if err := PrepareRule(&bad[i]); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("case %d: expected VALIDATION, got %v", i, err)
		}
	}

	for _, rule := range DefaultRules() {
		r := rule
		if err := PrepareRule(&r); err != nil {
			t.Errorf("default rule %s %s->%s invalid: %v", r.EntityType, r.FromState, r.ToState, err)
		}
	}
}
