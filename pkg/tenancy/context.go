package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/voxlane/backoffice/pkg/models"
)

type contextKey string

const principalKey contextKey = "principal"

var (
	ErrNoPrincipal         = errors.New("no principal in context")
	ErrNoCustomerInContext = errors.New("no customer in context")
)

// Principal is the authenticated caller of a request
type Principal struct {
	UserID     string      `json:"user_id"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name,omitempty"`
	Role       models.Role `json:"role"`
	CustomerID string      `json:"customer_id,omitempty"`
	SessionID  string      `json:"-"`
	APIKey     bool        `json:"api_key,omitempty"`
}

// IsStaff reports whether the principal belongs to the operator rather than a customer
func (p *Principal) IsStaff() bool {
	return p.CustomerID == "" && p.Role.IsStaff()
}

// Can reports whether the principal's role grants perm
func (p *Principal) Can(perm models.Permission) bool {
	return p.Role.HasPermission(perm)
}

// WithPrincipal adds the caller to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal extracts the caller from context
func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// GetCustomerID extracts the customer the caller acts for
func GetCustomerID(ctx context.Context) (string, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "", err
	}
	if p.CustomerID == "" {
		return "", ErrNoCustomerInContext
	}
	return p.CustomerID, nil
}

// GetUserRole extracts the caller's role, empty when unauthenticated
func GetUserRole(ctx context.Context) models.Role {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return ""
	}
	return p.Role
}

// Actor returns a short description of the caller for ledgers and logs
func Actor(ctx context.Context) string {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "system"
	}
	if p.Email != "" {
		return p.Email
	}
	return p.UserID
}

// WriteError sends the JSON error body used across the API with its content type
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// RequireCustomer ensures the request acts for a customer account
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := GetPrincipal(r.Context()); err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if _, err := GetCustomerID(r.Context()); err != nil {
			WriteError(w, http.StatusForbidden, "forbidden", "Customer account required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff ensures the request comes from an operator account
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r.Context())
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if !p.IsStaff() {
			WriteError(w, http.StatusForbidden, "forbidden", "Staff account required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
