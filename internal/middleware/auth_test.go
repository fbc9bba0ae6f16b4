package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/auth"
	"github.com/xelth-com/riveredgego/internal/cache"
	"github.com/xelth-com/riveredgego/internal/config"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/respond"
	"github.com/xelth-com/riveredgego/internal/tenancy"
	"github.com/xelth-com/riveredgego/internal/testutil"
)

type fixture struct {
	db       *gorm.DB
	tokens   *auth.Tokens
	boundary *Boundary
	acme     *models.Tenant
	globex   *models.Tenant
	alice    *models.User
	root     *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:     db,
		tokens: auth.NewTokens(config.AuthConfig{JWTSecret: "s3cret", JWTAlgorithm: "HS256", TokenTTL: time.Hour}),
		acme:   testutil.CreateTenant(t, db, "acme"),
		globex: testutil.CreateTenant(t, db, "globex"),
	}
	f.alice = testutil.CreateUser(t, db, f.acme, "alice")
	f.root = testutil.CreatePlatformAdmin(t, db, "root")
	f.boundary = NewBoundary(f.tokens, auth.NewDirectory(db, cache.NewMemory()), nil)
	return f
}

func (f *fixture) token(t *testing.T, u *models.User, tenantID *uint) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(auth.PrincipalOf(u), tenantID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

type seen struct {
	tenantID  uint
	hasTenant bool
	principal *tenancy.Principal
}

func capture(s *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tenantID, s.hasTenant = tenancy.TenantID(r.Context())
		s.principal, _ = tenancy.PrincipalFrom(r.Context())
		respond.JSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	})
}

func do(h http.Handler, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/demand", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func code(t *testing.T, rec *httptest.ResponseRecorder) apperr.Kind {
	t.Helper()
	var body respond.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestBoundaryRejectsBadCredentials(t *testing.T) {
	f := setup(t)
	var s seen
	h := f.boundary.Tenant(capture(&s))

	for name, token := range map[string]string{"missing": "", "garbage": "abc.def.ghi"} {
		rec := do(h, token, nil)
		if rec.Code != http.StatusUnauthorized || code(t, rec) != apperr.KindAuthInvalid {
			t.Errorf("%s: got %d %s", name, rec.Code, rec.Body.String())
		}
	}

	tok := f.token(t, f.alice, f.alice.TenantID)
	if err := f.db.Model(f.alice).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	rec := do(h, tok, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("inactive principal: got %d", rec.Code)
	}
	if s.principal != nil {
		t.Error("handler must not run")
	}
}

func TestBoundaryUsesClaimTenant(t *testing.T) {
	f := setup(t)
	var s seen
	h := f.boundary.Tenant(capture(&s))

	// The selector header cannot move a tenant credential elsewhere.
	rec := do(h, f.token(t, f.alice, f.alice.TenantID), map[string]string{TenantHeader: "globex"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	if !s.hasTenant || s.tenantID != f.acme.ID {
		t.Errorf("expected tenant %d, got %d (%v)", f.acme.ID, s.tenantID, s.hasTenant)
	}
	if s.principal == nil || s.principal.Username != "alice" {
		t.Errorf("unexpected principal %+v", s.principal)
	}
}

func TestBoundaryRefusesForeignTenantClaim(t *testing.T) {
	f := setup(t)
	var s seen
	h := f.boundary.Tenant(capture(&s))

	rec := do(h, f.token(t, f.alice, &f.globex.ID), nil)
	if rec.Code != http.StatusForbidden || code(t, rec) != apperr.KindTenantForbidden {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBoundaryPlatformAdminSelector(t *testing.T) {
	f := setup(t)
	var s seen
	h := f.boundary.Tenant(capture(&s))
	tok := f.token(t, f.root, nil)

	rec := do(h, tok, nil)
	if rec.Code != http.StatusBadRequest || code(t, rec) != apperr.KindValidation {
		t.Errorf("no selector: got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, tok, map[string]string{TenantHeader: "globex"})
	if rec.Code != http.StatusOK || s.tenantID != f.globex.ID {
		t.Errorf("slug selector: got %d tenant %d", rec.Code, s.tenantID)
	}

	rec = do(h, tok, map[string]string{TenantHeader: "nowhere"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("unknown tenant: got %d", rec.Code)
	}
}

func TestBoundaryRefusesUnusableTenant(t *testing.T) {
	f := setup(t)
	past := time.Now().Add(-time.Hour)
	if err := f.db.Model(f.acme).Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire: %v", err)
	}
	if err := f.db.Model(f.globex).Update("status", models.TenantSuspended).Error; err != nil {
		t.Fatalf("suspend: %v", err)
	}

	var s seen
	h := f.boundary.Tenant(capture(&s))
	if rec := do(h, f.token(t, f.alice, f.alice.TenantID), nil); rec.Code != http.StatusForbidden {
		t.Errorf("expired tenant: got %d", rec.Code)
	}
	if rec := do(h, f.token(t, f.root, nil), map[string]string{TenantHeader: "globex"}); rec.Code != http.StatusForbidden {
		t.Errorf("suspended tenant: got %d", rec.Code)
	}
}

func TestPlatformAdminGuard(t *testing.T) {
	f := setup(t)
	var s seen
	h := f.boundary.PlatformAdmin(capture(&s))

	rec := do(h, f.token(t, f.alice, f.alice.TenantID), nil)
	if rec.Code != http.StatusForbidden || code(t, rec) != apperr.KindPermissionDenied {
		t.Errorf("tenant credential: got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, f.token(t, f.root, nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("platform credential: got %d", rec.Code)
	}
	if s.hasTenant {
		t.Error("admin endpoints must not bind a tenant")
	}
	if s.principal == nil || !s.principal.PlatformAdmin {
		t.Errorf("unexpected principal %+v", s.principal)
	}
}

func TestAdminWritesGuard(t *testing.T) {
	f := setup(t)
	var s seen
	h := f.boundary.Tenant(f.boundary.AdminWrites(capture(&s)))
	send := func(method, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/transition-rules", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(TenantHeader, "acme")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	alice := f.token(t, f.alice, f.alice.TenantID)

	if rec := send(http.MethodGet, alice); rec.Code != http.StatusOK {
		t.Errorf("member read: got %d %s", rec.Code, rec.Body.String())
	}
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := send(method, alice)
		if rec.Code != http.StatusForbidden || code(t, rec) != apperr.KindPermissionDenied {
			t.Errorf("member %s: got %d %s", method, rec.Code, rec.Body.String())
		}
	}

	if err := f.db.Model(f.alice).Update("is_tenant_admin", true).Error; err != nil {
		t.Fatalf("promote: %v", err)
	}
	f.boundary = NewBoundary(f.tokens, auth.NewDirectory(f.db, cache.NewMemory()), nil)
	h = f.boundary.Tenant(f.boundary.AdminWrites(capture(&s)))
	if rec := send(http.MethodPut, alice); rec.Code != http.StatusOK {
		t.Errorf("tenant admin write: got %d %s", rec.Code, rec.Body.String())
	}
	if rec := send(http.MethodDelete, f.token(t, f.root, nil)); rec.Code != http.StatusOK {
		t.Errorf("platform admin write: got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestIDAndRecover(t *testing.T) {
	h := RequestID(Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id")
	}
	if code(t, rec) != apperr.KindInternal {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
