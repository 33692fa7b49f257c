package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func TestSecurityHeaders(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "", nil)
	headers := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy":  "same-origin",
		"Access-Control-Allow-Origin": "*",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Fatalf("header %s: want %q, got %q", name, want, got)
		}
	}
}

func TestOptionsPreflight(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodOptions, "/api/v1/checkout", "", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestCSRFTokenWindow(t *testing.T) {
	api := New(nil, nil, "*")

	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()

	current := api.csrfTokenForHour(currentBucket)
	previous := api.csrfTokenForHour(currentBucket - 3600)
	stale := api.csrfTokenForHour(currentBucket - 2*3600)

	if !api.validateCSRFToken(current) {
		t.Fatalf("current-hour token must validate")
	}
	if !api.validateCSRFToken(previous) {
		t.Fatalf("previous-hour token must validate")
	}
	if api.validateCSRFToken(stale) {
		t.Fatalf("token older than the window must not validate")
	}
	if api.validateCSRFToken("") || api.validateCSRFToken("garbage") {
		t.Fatalf("malformed tokens must not validate")
	}
}

func TestCSRFTokensDifferPerInstance(t *testing.T) {
	a := New(nil, nil, "*")
	b := New(nil, nil, "*")

	if a.validateCSRFToken(b.generateCSRFToken()) {
		t.Fatalf("a token minted by one instance must not validate on another")
	}
}

func TestAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("4th attempt should be blocked")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("limits must be per client")
	}
}

func TestClientKeyParsing(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	if got := clientKey(req); got != "192.0.2.7" {
		t.Fatalf("want 192.0.2.7, got %q", got)
	}

	req.RemoteAddr = "[2001:db8::1]:443"
	if got := clientKey(req); got != "2001:db8::1" {
		t.Fatalf("want 2001:db8::1, got %q", got)
	}
}
