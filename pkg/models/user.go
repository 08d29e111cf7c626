package models

import (
	"time"
)

// Role represents a user role in the system
type Role string

const (
	RoleSuperAdmin Role = "super_admin" // Platform owner, destructive operations
	RoleAdmin      Role = "admin"       // Platform staff
	RoleOwner      Role = "owner"       // Customer account owner
	RoleMember     Role = "member"      // Customer user
)

// Permission represents a specific permission
type Permission string

const (
	// Portal permissions
	PermPortalRead   Permission = "portal:read"
	PermPortalWrite  Permission = "portal:write"
	PermBillingWrite Permission = "billing:write"
	PermTeamManage   Permission = "team:manage"

	// Customer administration
	PermCustomersRead   Permission = "customers:read"
	PermCustomersWrite  Permission = "customers:write"
	PermCustomersDelete Permission = "customers:delete"

	// Carriers, rate cards, routes and DID inventory
	PermCatalogRead  Permission = "catalog:read"
	PermCatalogWrite Permission = "catalog:write"

	PermAuditRead    Permission = "audit:read"
	PermTrashManage  Permission = "trash:manage"
	PermTrashPurge   Permission = "trash:purge"
	PermPlatformSync Permission = "platform:sync"
	PermKYCReview    Permission = "kyc:review"
	PermCDRIngest    Permission = "cdr:ingest"
	PermSystemRead   Permission = "system:read"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermCustomersRead, PermCustomersWrite, PermCustomersDelete,
		PermCatalogRead, PermCatalogWrite,
		PermAuditRead,
		PermTrashManage, PermTrashPurge,
		PermPlatformSync,
		PermKYCReview,
		PermCDRIngest,
		PermSystemRead,
	},
	RoleAdmin: {
		PermCustomersRead, PermCustomersWrite,
		PermCatalogRead, PermCatalogWrite,
		PermAuditRead,
		PermTrashManage,
		PermKYCReview,
		PermCDRIngest,
		PermSystemRead,
	},
	RoleOwner: {
		PermPortalRead, PermPortalWrite,
		PermBillingWrite,
		PermTeamManage,
	},
	RoleMember: {
		PermPortalRead, PermPortalWrite,
	},
}

// HasPermission checks if a role has a specific permission
func (r Role) HasPermission(perm Permission) bool {
	for _, p := range RolePermissions[r] {
		if p == perm {
			return true
		}
	}
	return false
}

// GetPermissions returns all permissions for a role
func (r Role) GetPermissions() []Permission {
	return RolePermissions[r]
}

// IsValid checks if a role is valid
func (r Role) IsValid() bool {
	_, ok := RolePermissions[r]
	return ok
}

// IsStaff reports whether the role belongs to platform staff rather than a customer
func (r Role) IsStaff() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// UserStatus values
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// User represents a user in the system. Staff users have an empty CustomerID.
type User struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customer_id,omitempty"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	FullName     string     `json:"full_name"`
	Role         Role       `json:"role"`
	Status       string     `json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserRequest represents a request to create a user
type UserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=10,max=72"`
	FullName string `json:"full_name" validate:"required,max=120"`
	Role     Role   `json:"role" validate:"required,oneof=super_admin admin owner member"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Session represents an authenticated session. Only the SHA-256 of the token is kept.
type Session struct {
	ID         string    `json:"id"`
	TokenHash  string    `json:"-"`
	UserID     string    `json:"user_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
