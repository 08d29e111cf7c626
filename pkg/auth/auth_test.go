package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

const testAPIKey = "test-admin-api-key-0123456789"

func setup(t *testing.T) (*Service, *store.MemoryStore, *models.Customer) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	c := models.NewCustomer("cus-1", "VX100001", &models.CustomerRequest{Name: "Acme", Email: "billing@acme.test"})
	require.NoError(t, s.CreateCustomer(ctx, c))

	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.CreateUser(ctx, &models.User{
		ID: "usr-1", CustomerID: c.ID, Email: "owner@acme.test", PasswordHash: hash,
		FullName: "Owner", Role: models.RoleOwner, Status: models.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}))

	svc := NewService(s, Config{SessionTTL: time.Hour, AdminAPIKey: testAPIKey}, nil)
	return svc, s, c
}

func TestHashPasswordTooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 73))
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be at most 72 bytes", verr.Fields["password"])

	_, err = HashPassword(strings.Repeat("x", 72))
	assert.NoError(t, err)
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, s, c := setup(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, "Owner@Acme.test", "correct horse battery", "10.0.0.1", "test")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "usr-1", resp.User.ID)

	_, err = s.GetSession(ctx, resp.Token)
	assert.ErrorIs(t, err, store.ErrNotFound, "raw tokens must never be stored")

	p, err := svc.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, p.CustomerID)
	assert.Equal(t, models.RoleOwner, p.Role)
	assert.False(t, p.IsStaff())

	require.NoError(t, svc.Logout(ctx, resp.Token))
	_, err = svc.Authenticate(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginFailures(t *testing.T) {
	svc, s, c := setup(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "owner@acme.test", "wrong password", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@acme.test", "whatever", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	c.Status = models.CustomerStatusSuspended
	require.NoError(t, s.UpdateCustomer(ctx, c))
	_, err = svc.Login(ctx, "owner@acme.test", "correct horse battery", "", "")
	assert.ErrorIs(t, err, ErrAccountSuspended)
}

func TestSessionExpiry(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, "owner@acme.test", "correct horse battery", "", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Authenticate(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAdminAPIKey(t *testing.T) {
	svc, _, _ := setup(t)

	p, err := svc.Authenticate(context.Background(), testAPIKey)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, p.Role)
	assert.True(t, p.APIKey)
	assert.True(t, p.IsStaff())
}

func TestMiddleware(t *testing.T) {
	svc, s, c := setup(t)
	ctx := context.Background()
	resp, err := svc.Login(ctx, "owner@acme.test", "correct horse battery", "", "")
	require.NoError(t, err)

	var seen *tenancy.Principal
	h := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = tenancy.GetPrincipal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+resp.Token) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: resp.Token}) }, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/portal/dashboard", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusNoContent {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "usr-1", seen.UserID)

	c.Status = models.CustomerStatusSuspended
	require.NoError(t, s.UpdateCustomer(ctx, c))
	req := httptest.NewRequest(http.MethodGet, "/api/portal/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEnsureSuperAdmin(t *testing.T) {
	svc, s, _ := setup(t)
	ctx := context.Background()

	created, err := svc.EnsureSuperAdmin(ctx, "Root@Voxlane.test", "a-long-password")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureSuperAdmin(ctx, "root@voxlane.test", "a-long-password")
	require.NoError(t, err)
	assert.False(t, created, "second call must be a no-op")

	u, err := s.GetUserByEmail(ctx, "root@voxlane.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, u.Role)
	assert.Empty(t, u.CustomerID)
}
