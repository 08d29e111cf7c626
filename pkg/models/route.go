package models

import (
	"time"
)

// Routing strategies
const (
	RouteStrategyLCR      = "lcr"
	RouteStrategyPriority = "priority"
)

// Route sends calls matching a prefix to an ordered set of carriers
type Route struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Prefix     string   `json:"prefix"`
	Strategy   string   `json:"strategy"`
	CarrierIDs []string `json:"carrier_ids"`
	Enabled    bool     `json:"enabled"`
	SyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RouteRequest creates or replaces a route
type RouteRequest struct {
	Name       string   `json:"name" validate:"required,min=2,max=80"`
	Prefix     string   `json:"prefix" validate:"omitempty,numeric,max=15"`
	Strategy   string   `json:"strategy" validate:"required,oneof=lcr priority"`
	CarrierIDs []string `json:"carrier_ids" validate:"required,min=1,max=20,unique,dive,required"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// Apply copies the request onto rt
func (r *RouteRequest) Apply(rt *Route) {
	rt.Name = r.Name
	rt.Prefix = r.Prefix
	rt.Strategy = r.Strategy
	rt.CarrierIDs = append([]string(nil), r.CarrierIDs...)
	rt.Enabled = true
	if r.Enabled != nil {
		rt.Enabled = *r.Enabled
	}
}
