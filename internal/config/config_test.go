package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ALGORITHM", "")
	t.Setenv("JWT_TTL", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("PORT", "")
	t.Setenv("USE_TZ", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8200" {
		t.Errorf("expected default port 8200, got %s", cfg.Port)
	}
	if cfg.Auth.JWTAlgorithm != "HS256" {
		t.Errorf("expected HS256, got %s", cfg.Auth.JWTAlgorithm)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("expected 2h TTL, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Time.Location.String() != "Asia/Shanghai" {
		t.Errorf("expected Asia/Shanghai, got %s", cfg.Time.Location)
	}
	if !cfg.Time.UseTZ {
		t.Error("USE_TZ should default to true")
	}
	if cfg.Time.Now().Location() != time.UTC {
		t.Error("with USE_TZ timestamps should be UTC")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"algorithm", "JWT_ALGORITHM", "RS256"},
		{"ttl", "JWT_TTL", "forever"},
		{"negative ttl", "JWT_TTL", "-1h"},
		{"timezone", "TIMEZONE", "Mars/Olympus"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestLocalTimestampsWithoutUseTZ(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("USE_TZ", "false")
	t.Setenv("TIMEZONE", "Asia/Shanghai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Time.Now().Location().String() != "Asia/Shanghai" {
		t.Errorf("expected local zone, got %s", cfg.Time.Now().Location())
	}
}
