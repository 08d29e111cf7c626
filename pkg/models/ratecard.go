package models

import (
	"time"
)

// Direction of a rate card
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// RateCard groups per-prefix rates. Buy cards belong to a carrier, sell cards are assigned to customers.
type RateCard struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Direction   string `json:"direction"`
	CarrierID   string `json:"carrier_id,omitempty"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	RateCount   int    `json:"rate_count"`
	SyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rate is the price for one destination prefix
type Rate struct {
	RateCardID       string `json:"rate_card_id,omitempty"`
	Prefix           string `json:"prefix" validate:"required,numeric,max=15"`
	Destination      string `json:"destination,omitempty" validate:"max=120"`
	RatePerMin       Money  `json:"rate_per_min" validate:"gte=0"`
	ConnectionFee    Money  `json:"connection_fee,omitempty" validate:"gte=0"`
	InitialIncrement int    `json:"initial_increment,omitempty" validate:"omitempty,min=1,max=3600"`
	Increment        int    `json:"increment,omitempty" validate:"omitempty,min=1,max=3600"`
}

// Normalize fills the default 60/60 billing increments
func (r *Rate) Normalize() {
	if r.InitialIncrement == 0 {
		r.InitialIncrement = 60
	}
	if r.Increment == 0 {
		r.Increment = 60
	}
}

// RateCardRequest creates or replaces rate card metadata
type RateCardRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=80"`
	Direction   string `json:"direction" validate:"required,oneof=buy sell"`
	CarrierID   string `json:"carrier_id,omitempty" validate:"required_if=Direction buy,excluded_if=Direction sell"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,iso4217"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// Apply copies the request onto rc
func (r *RateCardRequest) Apply(rc *RateCard) {
	rc.Name = r.Name
	rc.Direction = r.Direction
	rc.CarrierID = r.CarrierID
	rc.Currency = r.Currency
	rc.Description = r.Description
	if rc.Currency == "" {
		rc.Currency = "USD"
	}
}

// RatesRequest replaces all rates of a card. Prefixes must be unique.
type RatesRequest struct {
	Rates []Rate `json:"rates" validate:"required,min=1,max=20000,unique=Prefix,dive"`
}
