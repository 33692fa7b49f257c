package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, domain.UserAccount) {
	t.Helper()
	repo := memory.New()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	user := domain.UserAccount{
		ID: "user-1", Email: "jo@pos.local", Username: "jo",
		PasswordHash: string(hash), Role: domain.RoleCashier,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	return NewAuthManager("unit-test-secret-unit-test-secret", time.Hour, repo), user
}

func TestLoginAndParseToken(t *testing.T) {
	auth, user := newTestAuth(t)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Identity: "jo@pos.local", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Email != user.Email || resp.Role != user.Role {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.ExpiresAt); err != nil {
		t.Fatalf("expires_at must be RFC3339: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if actor.ID != user.ID || actor.Email != user.Email || actor.Role != user.Role {
		t.Fatalf("claims round trip lost fields: %+v", actor)
	}
}

func TestLoginByUsernameAndCaseFolding(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.Login(ctx, domain.LoginRequest{Identity: "jo", Password: "secret1"}); err != nil {
		t.Fatalf("username login: %v", err)
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Identity: "  JO@POS.LOCAL  ", Password: "secret1"}); err != nil {
		t.Fatalf("case-folded email login: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []domain.LoginRequest{
		{Identity: "jo@pos.local", Password: "wrong"},
		{Identity: "nobody@pos.local", Password: "secret1"},
		{Identity: "", Password: "secret1"},
		{Identity: "jo@pos.local", Password: ""},
	}
	for _, req := range cases {
		_, err := auth.Login(ctx, req)
		if err == nil || err.Error() != "invalid credentials" {
			t.Fatalf("request %+v: expected uniform credential error, got %v", req, err)
		}
	}
}

func TestParseTokenTampered(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Identity: "jo@pos.local", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("tampered token must not parse")
	}

	other := NewAuthManager("a-completely-different-signing-key", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another key must not parse")
	}

	if _, err := auth.ParseToken(strings.Repeat("x", 40)); err == nil {
		t.Fatalf("garbage must not parse")
	}
}

func TestParseTokenExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.tokenTTL = -time.Minute

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Identity: "jo@pos.local", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expired token must not parse")
	}
}
