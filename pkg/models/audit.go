package models

import (
	"encoding/json"
	"time"
)

// AuditLog is one recorded change
type AuditLog struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorEmail string          `json:"actor_email,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	CustomerID string          `json:"customer_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditFilter narrows audit listings
type AuditFilter struct {
	CustomerID string
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Since      *time.Time
	Until      *time.Time
	Page
}
