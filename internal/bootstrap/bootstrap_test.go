package bootstrap

import (
	"context"
	"testing"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/statemachine"
	"github.com/xelth-com/riveredgego/internal/testutil"
)

func TestValidateDomain(t *testing.T) {
	good := []string{"acme", "globex-cn", "a1b", "default"}
	bad := []string{"", "ab", "Acme", "-acme", "acme-", "ac me", "acme_1"}
	for _, d := range good {
		if err := ValidateDomain(d); err != nil {
			t.Errorf("%q: unexpected error %v", d, err)
		}
	}
	for _, d := range bad {
		if err := ValidateDomain(d); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%q: expected VALIDATION, got %v", d, err)
		}
	}
}

func TestProvisionSeedsDefaults(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{Domain: " Acme ", Name: "Acme Corp"}
	if err := Provision(ctx, db, tenant, false); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if tenant.Domain != "acme" || tenant.Status != models.TenantActive || tenant.MaxUsers != 10 {
		t.Errorf("unexpected tenant %+v", tenant)
	}

	var rules, edges int64
	db.Model(&models.CodeRule{}).Where("tenant_id = ?", tenant.ID).Count(&rules)
	db.Model(&models.TransitionRule{}).Where("tenant_id = ?", tenant.ID).Count(&edges)
	if int(rules) != len(codegen.Templates) {
		t.Errorf("expected %d code rules, got %d", len(codegen.Templates), rules)
	}
	if int(edges) != len(statemachine.DefaultRules()) {
		t.Errorf("expected %d transition rules, got %d", len(statemachine.DefaultRules()), edges)
	}

	// Re-running is a no-op.
	if err := InitializeTenant(ctx, db, tenant.ID); err != nil {
		t.Fatalf("initialize again: %v", err)
	}
	var again int64
	db.Model(&models.CodeRule{}).Where("tenant_id = ?", tenant.ID).Count(&again)
	if again != rules {
		t.Errorf("initialize duplicated rules: %d -> %d", rules, again)
	}

	dup := &models.Tenant{Domain: "acme", Name: "Other"}
	if err := Provision(ctx, db, dup, false); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected CONFLICT for duplicate domain, got %v", err)
	}
}

func TestInitializeMatchesLegacySpellings(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{Domain: "acme", Name: "Acme"}
	if err := Provision(ctx, db, tenant, false); err != nil {
		t.Fatalf("provision: %v", err)
	}
	res := db.Model(&models.TransitionRule{}).
		Where("tenant_id = ? AND entity_type = ? AND from_state = ? AND to_state = ?",
			tenant.ID, "demand", models.StatusDraft, models.StatusPendingReview).
		Updates(map[string]interface{}{"from_state": "草稿", "to_state": "待审核"})
	if res.Error != nil || res.RowsAffected != 1 {
		t.Fatalf("respell rule: %v (%d rows)", res.Error, res.RowsAffected)
	}

	if err := InitializeTenant(ctx, db, tenant.ID); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	var edges int64
	db.Model(&models.TransitionRule{}).Where("tenant_id = ?", tenant.ID).Count(&edges)
	if int(edges) != len(statemachine.DefaultRules()) {
		t.Errorf("legacy rule was duplicated: %d rules, want %d", edges, len(statemachine.DefaultRules()))
	}
}

func TestReservedDomain(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	if err := Provision(ctx, db, &models.Tenant{Domain: ReservedDomain, Name: "x"}, false); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected VALIDATION for reserved domain, got %v", err)
	}

	first, err := EnsureDefaultTenant(ctx, db, ReservedDomain)
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	second, err := EnsureDefaultTenant(ctx, db, ReservedDomain)
	if err != nil {
		t.Fatalf("ensure default again: %v", err)
	}
	if first.ID != second.ID || first.Plan != models.PlanEnterprise {
		t.Errorf("expected one enterprise system tenant, got %+v and %+v", first, second)
	}
}

func TestEnsurePlatformAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	if _, _, err := EnsurePlatformAdmin(ctx, db, "root", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected VALIDATION without password, got %v", err)
	}

	user, created, err := EnsurePlatformAdmin(ctx, db, "root", "changeme")
	if err != nil || !created {
		t.Fatalf("create admin: %v (created=%v)", err, created)
	}
	if !user.IsPlatformAdmin || user.TenantID != nil || !auth.CheckPasswordHash("changeme", user.PasswordHash) {
		t.Errorf("unexpected admin %+v", user)
	}

	again, created, err := EnsurePlatformAdmin(ctx, db, "root", "other")
	if err != nil || created || again.ID != user.ID {
		t.Errorf("expected existing admin, got %+v created=%v err=%v", again, created, err)
	}
}
