package models

import (
	"time"
)

// DID statuses
const (
	DIDStatusAvailable = "available"
	DIDStatusAssigned  = "assigned"
	DIDStatusReserved  = "reserved"
	DIDStatusPorting   = "porting"
)

// DID destination types
const (
	DestinationNone       = "none"
	DestinationExtension  = "extension"
	DestinationIVR        = "ivr"
	DestinationVoiceAgent = "voice_agent"
	DestinationSIPURI     = "sip_uri"
)

// DID is a phone number held in inventory and leased to customers
type DID struct {
	ID              string     `json:"id"`
	Number          string     `json:"number"`
	Country         string     `json:"country"`
	Region          string     `json:"region,omitempty"`
	Type            string     `json:"type"`
	MonthlyPrice    Money      `json:"monthly_price"`
	SetupPrice      Money      `json:"setup_price"`
	RequiresKYC     bool       `json:"requires_kyc"`
	Status          string     `json:"status"`
	CustomerID      string     `json:"customer_id,omitempty"`
	DestinationType string     `json:"destination_type"`
	DestinationID   string     `json:"destination_id,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DIDRequest adds a number to the inventory
type DIDRequest struct {
	Number       string `json:"number" validate:"required,e164"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
	Region       string `json:"region,omitempty" validate:"max=80"`
	Type         string `json:"type,omitempty" validate:"omitempty,oneof=local mobile tollfree national"`
	MonthlyPrice Money  `json:"monthly_price" validate:"gte=0"`
	SetupPrice   Money  `json:"setup_price,omitempty" validate:"gte=0"`
	RequiresKYC  bool   `json:"requires_kyc,omitempty"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=available reserved porting"`
}

// Apply copies the request onto d. Assignment fields are not touched.
func (r *DIDRequest) Apply(d *DID) {
	d.Number = r.Number
	d.Country = r.Country
	d.Region = r.Region
	d.Type = r.Type
	d.MonthlyPrice = r.MonthlyPrice
	d.SetupPrice = r.SetupPrice
	d.RequiresKYC = r.RequiresKYC
	if d.Type == "" {
		d.Type = "local"
	}
	if r.Status != "" && d.CustomerID == "" {
		d.Status = r.Status
	}
	if d.Status == "" {
		d.Status = DIDStatusAvailable
	}
	if d.DestinationType == "" {
		d.DestinationType = DestinationNone
	}
}

// DIDDestinationRequest points an owned number at a call target
type DIDDestinationRequest struct {
	DestinationType string `json:"destination_type" validate:"required,oneof=none extension ivr voice_agent sip_uri"`
	DestinationID   string `json:"destination_id" validate:"required_unless=DestinationType none,excluded_if=DestinationType none,max=255"`
}

// DIDFilter narrows DID listings
type DIDFilter struct {
	Status     string
	CustomerID string
	Country    string
	Search     string
	Page
}
