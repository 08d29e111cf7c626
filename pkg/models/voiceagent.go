package models

import (
	"time"
)

// VoiceAgent is an AI agent that answers calls
type VoiceAgent struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	Name         string    `json:"name"`
	Voice        string    `json:"voice"`
	Language     string    `json:"language"`
	SystemPrompt string    `json:"system_prompt"`
	Greeting     string    `json:"greeting,omitempty"`
	TransferTo   string    `json:"transfer_to,omitempty"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VoiceAgentRequest creates or replaces a voice agent
type VoiceAgentRequest struct {
	Name         string `json:"name" validate:"required,max=80"`
	Voice        string `json:"voice" validate:"required,max=40"`
	Language     string `json:"language" validate:"required,bcp47_language_tag"`
	SystemPrompt string `json:"system_prompt" validate:"required,max=8000"`
	Greeting     string `json:"greeting,omitempty" validate:"max=1000"`
	TransferTo   string `json:"transfer_to,omitempty" validate:"omitempty,e164"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// Apply copies the request onto a
func (r *VoiceAgentRequest) Apply(a *VoiceAgent) {
	a.Name = r.Name
	a.Voice = r.Voice
	a.Language = r.Language
	a.SystemPrompt = r.SystemPrompt
	a.Greeting = r.Greeting
	a.TransferTo = r.TransferTo
	a.Enabled = true
	if r.Enabled != nil {
		a.Enabled = *r.Enabled
	}
}
