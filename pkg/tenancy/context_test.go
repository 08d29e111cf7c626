package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlane/backoffice/pkg/models"
)

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, err := GetPrincipal(ctx); err != ErrNoPrincipal {
		t.Fatalf("Expected ErrNoPrincipal, got %v", err)
	}
	if Actor(ctx) != "system" {
		t.Errorf("Expected system actor for background work")
	}

	ctx = WithPrincipal(ctx, &Principal{UserID: "u1", Email: "a@b.test", Role: models.RoleAdmin})
	if _, err := GetCustomerID(ctx); err != ErrNoCustomerInContext {
		t.Errorf("Expected ErrNoCustomerInContext for staff, got %v", err)
	}
	if GetUserRole(ctx) != models.RoleAdmin || Actor(ctx) != "a@b.test" {
		t.Errorf("Unexpected role or actor")
	}
}

func TestRequireCustomerAndStaff(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	customer := &Principal{UserID: "u1", Role: models.RoleOwner, CustomerID: "c1"}
	staff := &Principal{UserID: "u2", Role: models.RoleAdmin}

	tests := []struct {
		name   string
		p      *Principal
		guard  func(http.Handler) http.Handler
		status int
	}{
		{"customer route anonymous", nil, RequireCustomer, http.StatusUnauthorized},
		{"customer route customer", customer, RequireCustomer, http.StatusOK},
		{"customer route staff", staff, RequireCustomer, http.StatusForbidden},
		{"staff route customer", customer, RequireStaff, http.StatusForbidden},
		{"staff route staff", staff, RequireStaff, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.p != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.p))
			}
			rec := httptest.NewRecorder()
			tt.guard(ok).ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
			if tt.status != http.StatusOK && rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Expected a JSON error, got Content-Type %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}
