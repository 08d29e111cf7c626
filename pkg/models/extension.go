package models

import (
	"time"
)

// Extension is a SIP endpoint inside a customer's PBX
type Extension struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	Number       string    `json:"number"`
	Name         string    `json:"name"`
	Secret       string    `json:"secret,omitempty"`
	Voicemail    bool      `json:"voicemail"`
	VoicemailPIN string    `json:"-"`
	ForwardTo    string    `json:"forward_to,omitempty"`
	CallerID     string    `json:"caller_id,omitempty"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Redacted returns a copy without the SIP secret. The secret is only shown on create.
func (e Extension) Redacted() Extension {
	e.Secret = ""
	return e
}

// ExtensionRequest creates or replaces an extension
type ExtensionRequest struct {
	Number       string `json:"number" validate:"required,numeric,min=2,max=6"`
	Name         string `json:"name" validate:"required,max=80"`
	Voicemail    bool   `json:"voicemail,omitempty"`
	VoicemailPIN string `json:"voicemail_pin,omitempty" validate:"omitempty,numeric,min=4,max=8"`
	ForwardTo    string `json:"forward_to,omitempty" validate:"omitempty,e164"`
	CallerID     string `json:"caller_id,omitempty" validate:"omitempty,e164"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// Apply copies the request onto e
func (r *ExtensionRequest) Apply(e *Extension) {
	e.Number = r.Number
	e.Name = r.Name
	e.Voicemail = r.Voicemail
	e.VoicemailPIN = r.VoicemailPIN
	e.ForwardTo = r.ForwardTo
	e.CallerID = r.CallerID
	e.Enabled = true
	if r.Enabled != nil {
		e.Enabled = *r.Enabled
	}
}
