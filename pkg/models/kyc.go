package models

import (
	"time"
)

// KYCSubmission is an identity verification request from a customer
type KYCSubmission struct {
	ID           string     `json:"id"`
	CustomerID   string     `json:"customer_id"`
	Status       KYCStatus  `json:"status"`
	LegalName    string     `json:"legal_name"`
	DocumentType string     `json:"document_type"`
	DocumentRef  string     `json:"document_ref"`
	Address      string     `json:"address"`
	Country      string     `json:"country"`
	ReviewNote   string     `json:"review_note,omitempty"`
	ReviewedBy   string     `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// KYCRequest is submitted by a customer owner
type KYCRequest struct {
	LegalName    string `json:"legal_name" validate:"required,max=200"`
	DocumentType string `json:"document_type" validate:"required,oneof=passport national_id company_registration"`
	DocumentRef  string `json:"document_ref" validate:"required,max=255"`
	Address      string `json:"address" validate:"required,max=500"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// KYCReviewRequest approves or rejects a submission
type KYCReviewRequest struct {
	Decision KYCStatus `json:"decision" validate:"required,oneof=approved rejected"`
	Note     string    `json:"note,omitempty" validate:"required_if=Decision rejected,max=1000"`
}
