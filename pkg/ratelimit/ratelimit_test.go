package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

func TestLimiter(t *testing.T) {
	// The bucket starts with burst tokens and each Allow consumes one
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("test-key") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("test-key") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("test-key") {
		t.Error("Third request should be rate limited")
	}
	if !limiter.Allow("other-key") {
		t.Error("Keys must not share a bucket")
	}

	// 10 req/s refills one token every 100ms
	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow("test-key") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := PerMinute(2)
	handler := limiter.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var rr *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("First two requests should succeed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Third request should be rate limited, got %d", codes[2])
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Rate limit response should be JSON, got Content-Type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"error":"rate_limited"`) {
		t.Errorf("Unexpected rate limit body: %s", rr.Body.String())
	}
}

func TestCleanupOldLimiters(t *testing.T) {
	limiter := NewLimiter(1, 1)
	limiter.Allow("a")
	limiter.Allow("b")

	if n := limiter.CleanupOldLimiters(time.Hour); n != 0 {
		t.Errorf("Fresh limiters must be kept, removed %d", n)
	}
	time.Sleep(5 * time.Millisecond)
	if n := limiter.CleanupOldLimiters(time.Millisecond); n != 2 {
		t.Errorf("Expected 2 stale limiters removed, got %d", n)
	}
	if limiter.Size() != 0 {
		t.Errorf("Expected empty limiter, got %d", limiter.Size())
	}
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Errorf("ClientIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Errorf("ClientIP with XFF = %q", got)
	}
	if got := PrincipalKeyFunc(req); got != "ip:203.0.113.5" {
		t.Errorf("Anonymous key = %q", got)
	}

	ctx := tenancy.WithPrincipal(context.Background(), &tenancy.Principal{UserID: "u1", Role: models.RoleOwner})
	if got := PrincipalKeyFunc(req.WithContext(ctx)); got != "user:u1" {
		t.Errorf("Principal key = %q", got)
	}
}
