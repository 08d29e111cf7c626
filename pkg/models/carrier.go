package models

import (
	"time"
)

// CarrierStatus values
const (
	CarrierStatusActive   = "active"
	CarrierStatusDisabled = "disabled"
)

// Carrier is an upstream termination provider
type Carrier struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Protocol     string `json:"protocol"`
	Priority     int    `json:"priority"`
	ChannelLimit int    `json:"channel_limit"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
	SyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive returns true when the carrier can take traffic
func (c *Carrier) IsActive() bool {
	return c.Status == CarrierStatusActive
}

// CarrierRequest creates or replaces a carrier
type CarrierRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=80"`
	Host         string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port         int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Protocol     string `json:"protocol,omitempty" validate:"omitempty,oneof=udp tcp tls"`
	Priority     int    `json:"priority,omitempty" validate:"min=0,max=1000"`
	ChannelLimit int    `json:"channel_limit,omitempty" validate:"min=0,max=100000"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=active disabled"`
	Notes        string `json:"notes,omitempty" validate:"max=500"`
}

// Apply copies the request onto c, filling defaults
func (r *CarrierRequest) Apply(c *Carrier) {
	c.Name = r.Name
	c.Host = r.Host
	c.Port = r.Port
	c.Protocol = r.Protocol
	c.Priority = r.Priority
	c.ChannelLimit = r.ChannelLimit
	c.Status = r.Status
	c.Notes = r.Notes
	if c.Port == 0 {
		c.Port = 5060
	}
	if c.Protocol == "" {
		c.Protocol = "udp"
	}
	if c.Status == "" {
		c.Status = CarrierStatusActive
	}
}
