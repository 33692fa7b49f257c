package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR", "AUTH_SECRET",
		"ACCESS_TOKEN_TTL_MINUTES", "REPORT_TIMEZONE", "REPORT_CACHE_TTL_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("unexpected default port %q", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("unexpected default token ttl %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.ReportTimezone != "Local" || cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("unexpected report defaults %+v", cfg)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("AUTH_SECRET must have no default, got %q", cfg.AuthSecret)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadOverridesAndBadInt(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "not-a-number")
	t.Setenv("AUTH_SECRET", "  spaced-secret  ")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("override lost: %q", cfg.Port)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("bad int must fall back to default, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.AuthSecret != "spaced-secret" {
		t.Fatalf("secret must be trimmed, got %q", cfg.AuthSecret)
	}
}
