package models

import (
	"time"
)

// CustomerStatus represents the lifecycle state of a customer account
type CustomerStatus string

const (
	CustomerStatusActive    CustomerStatus = "active"
	CustomerStatusSuspended CustomerStatus = "suspended"
	CustomerStatusClosed    CustomerStatus = "closed"
)

// KYCStatus is the identity verification state of a customer
type KYCStatus string

const (
	KYCStatusNone     KYCStatus = "none"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
)

// SyncState tracks the mirror of an entity in the softswitch
type SyncState struct {
	ExternalID int64      `json:"external_id,omitempty"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
	SyncError  string     `json:"sync_error,omitempty"`
}

// MarkSynced records a successful push
func (s *SyncState) MarkSynced(externalID int64, at time.Time) {
	s.ExternalID = externalID
	s.SyncedAt = &at
	s.SyncError = ""
}

// Customer is a tenant of the platform (a reseller, business or individual account)
type Customer struct {
	ID            string         `json:"id"`
	AccountNumber string         `json:"account_number"`
	Name          string         `json:"name"`
	Company       string         `json:"company,omitempty"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	Country       string         `json:"country,omitempty"`
	Status        CustomerStatus `json:"status"`
	Plan          string         `json:"plan"`
	Currency      string         `json:"currency"`
	Balance       Money          `json:"balance"`
	CreditLimit   Money          `json:"credit_limit"`
	RateCardID    string         `json:"rate_card_id,omitempty"`
	ChannelLimit  int            `json:"channel_limit"`
	KYCStatus     KYCStatus      `json:"kyc_status"`
	SyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive returns true if the customer may use the portal and buy numbers
func (c *Customer) IsActive() bool {
	return c.Status == CustomerStatusActive
}

// Available returns the spendable amount including the credit limit
func (c *Customer) Available() Money {
	return c.Balance + c.CreditLimit
}

// CustomerRequest is the admin payload for creating a customer
type CustomerRequest struct {
	Name          string `json:"name" validate:"required,min=2,max=120"`
	Company       string `json:"company,omitempty" validate:"max=120"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Phone         string `json:"phone,omitempty" validate:"omitempty,e164"`
	Country       string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Plan          string `json:"plan,omitempty" validate:"omitempty,oneof=payg standard enterprise"`
	Currency      string `json:"currency,omitempty" validate:"omitempty,iso4217"`
	CreditLimit   Money  `json:"credit_limit,omitempty" validate:"gte=0,lte=100000000000"`
	RateCardID    string `json:"rate_card_id,omitempty" validate:"omitempty,max=64"`
	ChannelLimit  int    `json:"channel_limit,omitempty" validate:"omitempty,min=1,max=10000"`
	OwnerName     string `json:"owner_name,omitempty" validate:"omitempty,max=120"`
	OwnerPassword string `json:"owner_password,omitempty" validate:"omitempty,min=10,max=72"`
}

// CustomerUpdate is a partial update; nil fields are left untouched
type CustomerUpdate struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=2,max=120"`
	Company      *string `json:"company,omitempty" validate:"omitempty,max=120"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,e164"`
	Country      *string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	Plan         *string `json:"plan,omitempty" validate:"omitempty,oneof=payg standard enterprise"`
	CreditLimit  *Money  `json:"credit_limit,omitempty" validate:"omitempty,gte=0,lte=100000000000"`
	RateCardID   *string `json:"rate_card_id,omitempty" validate:"omitempty,max=64"`
	ChannelLimit *int    `json:"channel_limit,omitempty" validate:"omitempty,min=1,max=10000"`
}

// Apply copies the non-nil fields onto c
func (u *CustomerUpdate) Apply(c *Customer) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Company != nil {
		c.Company = *u.Company
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.Country != nil {
		c.Country = *u.Country
	}
	if u.Plan != nil {
		c.Plan = *u.Plan
	}
	if u.CreditLimit != nil {
		c.CreditLimit = *u.CreditLimit
	}
	if u.RateCardID != nil {
		c.RateCardID = *u.RateCardID
	}
	if u.ChannelLimit != nil {
		c.ChannelLimit = *u.ChannelLimit
	}
}

// CustomerFilter narrows customer listings
type CustomerFilter struct {
	Status CustomerStatus
	Search string
	Page
}

// NewCustomer creates a customer with defaults applied
func NewCustomer(id, accountNumber string, req *CustomerRequest) *Customer {
	now := time.Now().UTC()
	c := &Customer{
		ID:            id,
		AccountNumber: accountNumber,
		Name:          req.Name,
		Company:       req.Company,
		Email:         req.Email,
		Phone:         req.Phone,
		Country:       req.Country,
		Status:        CustomerStatusActive,
		Plan:          req.Plan,
		Currency:      req.Currency,
		CreditLimit:   req.CreditLimit,
		RateCardID:    req.RateCardID,
		ChannelLimit:  req.ChannelLimit,
		KYCStatus:     KYCStatusNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c.Plan == "" {
		c.Plan = "payg"
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.ChannelLimit == 0 {
		c.ChannelLimit = 10
	}
	return c
}
