package models

import (
	"time"
)

// IVRMenu is a voice menu with keypress options
type IVRMenu struct {
	ID             string      `json:"id"`
	CustomerID     string      `json:"customer_id"`
	Name           string      `json:"name"`
	Greeting       string      `json:"greeting"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	Options        []IVROption `json:"options"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IVROption maps a digit to an action
type IVROption struct {
	Digit  string `json:"digit" validate:"required,oneof=0 1 2 3 4 5 6 7 8 9 * #"`
	Action string `json:"action" validate:"required,oneof=extension ivr voice_agent hangup external"`
	Target string `json:"target,omitempty" validate:"required_unless=Action hangup,max=255"`
}

// IVRRequest creates or replaces an IVR menu. Option digits must be unique.
type IVRRequest struct {
	Name           string      `json:"name" validate:"required,max=80"`
	Greeting       string      `json:"greeting" validate:"required,max=2000"`
	TimeoutSeconds int         `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=60"`
	Options        []IVROption `json:"options" validate:"max=12,unique=Digit,dive"`
}

// Apply copies the request onto m
func (r *IVRRequest) Apply(m *IVRMenu) {
	m.Name = r.Name
	m.Greeting = r.Greeting
	m.TimeoutSeconds = r.TimeoutSeconds
	if m.TimeoutSeconds == 0 {
		m.TimeoutSeconds = 5
	}
	m.Options = append([]IVROption{}, r.Options...)
}
