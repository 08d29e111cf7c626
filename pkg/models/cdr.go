package models

import (
	"time"
)

// CDR billing states
const (
	BillingStatusBilled   = "billed"
	BillingStatusUnbilled = "unbilled"
	BillingStatusNoRate   = "no_rate"
)

// CDR is a rated call detail record
type CDR struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	CallID        string    `json:"call_id"`
	Direction     string    `json:"direction"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	StartedAt     time.Time `json:"started_at"`
	Duration      int       `json:"duration"`
	Billsec       int       `json:"billsec"`
	Disposition   string    `json:"disposition"`
	Prefix        string    `json:"prefix,omitempty"`
	RatePerMin    Money     `json:"rate_per_min"`
	Cost          Money     `json:"cost"`
	BillingStatus string    `json:"billing_status"`
	CreatedAt     time.Time `json:"created_at"`
}

// CDRIngestRequest is a raw call record pushed by the softswitch
type CDRIngestRequest struct {
	CustomerID  string    `json:"customer_id,omitempty" validate:"max=64"`
	CallID      string    `json:"call_id" validate:"required,max=128"`
	Direction   string    `json:"direction" validate:"required,oneof=inbound outbound"`
	From        string    `json:"from" validate:"required,max=32"`
	To          string    `json:"to" validate:"required,max=32"`
	StartedAt   time.Time `json:"started_at" validate:"required"`
	Duration    int       `json:"duration" validate:"min=0"`
	Billsec     int       `json:"billsec" validate:"min=0,ltefield=Duration"`
	Disposition string    `json:"disposition" validate:"required,oneof=answered busy failed no_answer"`
}

// CDRFilter narrows CDR listings
type CDRFilter struct {
	CustomerID   string
	Direction    string
	From         *time.Time
	To           *time.Time
	Number       string
	// CreatedUntil excludes records ingested after this instant
	CreatedUntil *time.Time
	Page
}
