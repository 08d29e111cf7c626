package models

import (
	"encoding/json"
	"time"
)

// Entity types shared by audit, trash and sync
const (
	EntityCustomer   = "customer"
	EntityUser       = "user"
	EntityCarrier    = "carrier"
	EntityRateCard   = "rate_card"
	EntityRoute      = "route"
	EntityDID        = "did"
	EntityExtension  = "extension"
	EntityIVR        = "ivr"
	EntityVoiceAgent = "voice_agent"
	EntityKYC        = "kyc"
	EntityTrash      = "trash"
	EntityPlatform   = "platform"
)

// TrashItem holds the snapshot of a deleted entity until it expires
type TrashItem struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	CustomerID string          `json:"customer_id,omitempty"`
	Label      string          `json:"label,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot"`
	DeletedBy  string          `json:"deleted_by,omitempty"`
	DeletedAt  time.Time       `json:"deleted_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Expired reports whether the item is past its retention at now
func (t *TrashItem) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TrashFilter narrows trash listings
type TrashFilter struct {
	EntityType string
	CustomerID string
	Page
}
