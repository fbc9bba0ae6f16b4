package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/cache"
	"github.com/xelth-com/riveredgego/internal/config"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/tenancy"
	"github.com/xelth-com/riveredgego/internal/testutil"
)

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}
	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}

func newTokens(secret, alg string) *Tokens {
	return NewTokens(config.AuthConfig{JWTSecret: secret, JWTAlgorithm: alg, TokenTTL: time.Hour})
}

func TestJWT(t *testing.T) {
	tokens := newTokens("test-secret-key-12345", "HS256")
	tenantID := uint(7)
	p := &tenancy.Principal{ID: 42, TenantID: &tenantID}

	token, exp, err := tokens.Issue(p, &tenantID)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if token == "" || exp.IsZero() {
		t.Fatal("Token and expiry should be set")
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if id, _ := claims.UserID(); id != 42 {
		t.Errorf("Expected user 42, got %d", id)
	}
	if claims.Kind != KindTenant || claims.TenantID == nil || *claims.TenantID != 7 {
		t.Errorf("Unexpected tenant claims: %+v", claims)
	}

	if _, err := newTokens("wrong-key", "HS256").Verify(token); err == nil {
		t.Error("Verification should fail with wrong key")
	}
	if _, err := newTokens("test-secret-key-12345", "HS512").Verify(token); err == nil {
		t.Error("Verification should fail for a different algorithm")
	}
}

func TestPlatformToken(t *testing.T) {
	tokens := newTokens("k", "HS384")
	token, _, err := tokens.Issue(&tenancy.Principal{ID: 1, PlatformAdmin: true}, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Kind != KindPlatform || claims.TenantID != nil {
		t.Errorf("expected platform claims, got %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	tokens := newTokens("k", "HS256")
	past := time.Now().Add(-2 * time.Hour)
	tokens.now = func() time.Time { return past }
	expired, _, err := tokens.Issue(&tenancy.Principal{ID: 1}, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tokens.now = time.Now
	if _, err := tokens.Verify(expired); err == nil {
		t.Error("expired token should be rejected")
	}

	sign := func(c jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("k"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tid := uint(3)
	bad := map[string]string{
		"no expiry":          sign(Claims{Kind: KindPlatform, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}),
		"tenant without tid": sign(Claims{Kind: KindTenant, RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: exp}}),
		"platform with tid":  sign(Claims{Kind: KindPlatform, TenantID: &tid, RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: exp}}),
		"unknown kind":       sign(Claims{Kind: "device", RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: exp}}),
		"bad subject":        sign(Claims{Kind: KindPlatform, RegisteredClaims: jwt.RegisteredClaims{Subject: "abc", ExpiresAt: exp}}),
		"garbage":            "not.a.token",
	}
	for name, token := range bad {
		if _, err := tokens.Verify(token); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestDirectory(t *testing.T) {
	db := testutil.NewDB(t)
	acme := testutil.CreateTenant(t, db, "acme")
	user := testutil.CreateUser(t, db, acme, "alice")
	ctx := context.Background()

	dir := NewDirectory(db, cache.NewMemory())

	p, err := dir.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if p.Username != "alice" || p.TenantID == nil || *p.TenantID != acme.ID {
		t.Errorf("unexpected principal %+v", p)
	}

	byID, err := dir.Tenant(ctx, "1")
	if err != nil || byID.Domain != "acme" {
		t.Fatalf("tenant by id = %+v, %v", byID, err)
	}
	bySlug, err := dir.Tenant(ctx, "ACME")
	if err != nil || bySlug.ID != acme.ID {
		t.Fatalf("tenant by slug = %+v, %v", bySlug, err)
	}
	if _, err := dir.Tenant(ctx, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if _, err := dir.Principal(ctx, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	// Cached until forgotten.
	if err := db.Model(acme).Update("status", models.TenantSuspended).Error; err != nil {
		t.Fatalf("suspend: %v", err)
	}
	cached, _ := dir.TenantByDomain(ctx, "acme")
	if cached.Status != models.TenantActive {
		t.Errorf("expected cached status, got %s", cached.Status)
	}
	dir.ForgetTenant(ctx, acme)
	fresh, _ := dir.TenantByDomain(ctx, "acme")
	if fresh.Status != models.TenantSuspended || fresh.Usable(time.Now()) {
		t.Errorf("expected suspended tenant, got %+v", fresh)
	}
}
