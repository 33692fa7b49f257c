package main

import (
	"strings"
	"testing"

	"retailpos/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	weak := config.Config{AuthSecret: "short"}
	if err := validateSecurityConfig(weak); err == nil {
		t.Fatalf("weak secret must be rejected")
	}

	empty := config.Config{}
	if err := validateSecurityConfig(empty); err == nil || !strings.Contains(err.Error(), "AUTH_SECRET") {
		t.Fatalf("missing secret must be rejected with a pointer to the variable, got %v", err)
	}

	strong := config.Config{AuthSecret: strings.Repeat("s", 32)}
	if err := validateSecurityConfig(strong); err != nil {
		t.Fatalf("strong secret rejected: %v", err)
	}
}
