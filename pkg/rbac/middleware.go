// Package rbac guards routes with the role to permission table in models.
package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

// ErrPermissionDenied is wrapped with the missing permission by Check
var ErrPermissionDenied = errors.New("permission denied")

type denial struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Permission models.Permission `json:"permission,omitempty"`
}

func deny(w http.ResponseWriter, status int, d denial) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(d)
}

// Check returns nil when the caller's role grants perm
func Check(ctx context.Context, perm models.Permission) error {
	p, err := tenancy.GetPrincipal(ctx)
	if err != nil {
		return err
	}
	if !p.Can(perm) {
		return fmt.Errorf("%w: %s lacks %s", ErrPermissionDenied, p.Role, perm)
	}
	return nil
}

// RequirePermission answers 401 without a principal and 403 when its role lacks perm
func RequirePermission(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := Check(r.Context(), perm)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrPermissionDenied):
				deny(w, http.StatusForbidden, denial{Error: "forbidden", Message: "Your role does not allow this action", Permission: perm})
			default:
				deny(w, http.StatusUnauthorized, denial{Error: "unauthorized", Message: "Authentication required"})
			}
		})
	}
}

// RequireAnyRole admits callers holding one of roles
func RequireAnyRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := tenancy.GetPrincipal(r.Context())
			if err != nil {
				deny(w, http.StatusUnauthorized, denial{Error: "unauthorized", Message: "Authentication required"})
				return
			}
			if !allowed[p.Role] {
				deny(w, http.StatusForbidden, denial{Error: "forbidden", Message: "Your role does not allow this action"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Permissions lists what the caller may do, sorted for stable output
func Permissions(ctx context.Context) []models.Permission {
	role := tenancy.GetUserRole(ctx)
	perms := append([]models.Permission(nil), role.GetPermissions()...)
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}
