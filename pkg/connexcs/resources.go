package connexcs

import (
	"context"
	"net/http"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

// CustomerPayload is the softswitch view of a customer account
type CustomerPayload struct {
	Name         string  `json:"name"`
	Reference    string  `json:"ref"`
	Email        string  `json:"email,omitempty"`
	Company      string  `json:"company,omitempty"`
	Country      string  `json:"country,omitempty"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	CreditLimit  string  `json:"credit_limit"`
	ChannelLimit int     `json:"channels"`
	RateCardID   *string `json:"rate_card_ref,omitempty"`
}

// CarrierPayload is the softswitch view of a termination carrier
type CarrierPayload struct {
	Name      string `json:"name"`
	Reference string `json:"ref"`
	Host      string `json:"ip"`
	Port      int    `json:"port"`
	Protocol  string `json:"protocol"`
	Channels  int    `json:"channels"`
	Enabled   bool   `json:"enabled"`
}

// RatePayload is one prefix row of a rate card
type RatePayload struct {
	Prefix           string `json:"prefix"`
	Name             string `json:"name,omitempty"`
	Rate             string `json:"rate"`
	ConnectionFee    string `json:"connection_price"`
	InitialIncrement int    `json:"initial_increment"`
	Increment        int    `json:"increment"`
}

// RateCardPayload is a rate card with its rates
type RateCardPayload struct {
	Name      string        `json:"name"`
	Reference string        `json:"ref"`
	Direction string        `json:"direction"`
	Currency  string        `json:"currency"`
	CarrierID int64         `json:"provider_id,omitempty"`
	Rates     []RatePayload `json:"rates"`
}

// RoutePayload is a prefix route over carriers
type RoutePayload struct {
	Name       string  `json:"name"`
	Reference  string  `json:"ref"`
	Prefix     string  `json:"prefix"`
	Strategy   string  `json:"strategy"`
	CarrierIDs []int64 `json:"provider_ids"`
	Enabled    bool    `json:"enabled"`
}

// NewCustomerPayload maps a stored customer
func NewCustomerPayload(c *models.Customer) CustomerPayload {
	p := CustomerPayload{
		Name:         c.Name,
		Reference:    c.AccountNumber,
		Email:        c.Email,
		Company:      c.Company,
		Country:      c.Country,
		Currency:     c.Currency,
		Status:       string(c.Status),
		CreditLimit:  c.CreditLimit.String(),
		ChannelLimit: c.ChannelLimit,
	}
	if c.RateCardID != "" {
		ref := c.RateCardID
		p.RateCardID = &ref
	}
	return p
}

// NewCarrierPayload maps a stored carrier
func NewCarrierPayload(c *models.Carrier) CarrierPayload {
	return CarrierPayload{
		Name:      c.Name,
		Reference: c.ID,
		Host:      c.Host,
		Port:      c.Port,
		Protocol:  c.Protocol,
		Channels:  c.ChannelLimit,
		Enabled:   c.IsActive(),
	}
}

// NewRateCardPayload maps a card and its rates. carrierExternalID is the remote id of a buy card's carrier.
func NewRateCardPayload(rc *models.RateCard, rates []models.Rate, carrierExternalID int64) RateCardPayload {
	p := RateCardPayload{
		Name:      rc.Name,
		Reference: rc.ID,
		Direction: rc.Direction,
		Currency:  rc.Currency,
		CarrierID: carrierExternalID,
		Rates:     make([]RatePayload, 0, len(rates)),
	}
	for _, r := range rates {
		r.Normalize()
		p.Rates = append(p.Rates, RatePayload{
			Prefix:           r.Prefix,
			Name:             r.Destination,
			Rate:             r.RatePerMin.String(),
			ConnectionFee:    r.ConnectionFee.String(),
			InitialIncrement: r.InitialIncrement,
			Increment:        r.Increment,
		})
	}
	return p
}

// NewRoutePayload maps a route. carrierExternalIDs follows the route's carrier order.
func NewRoutePayload(rt *models.Route, carrierExternalIDs []int64) RoutePayload {
	return RoutePayload{
		Name:       rt.Name,
		Reference:  rt.ID,
		Prefix:     rt.Prefix,
		Strategy:   rt.Strategy,
		CarrierIDs: carrierExternalIDs,
		Enabled:    rt.Enabled,
	}
}

func (c *Client) UpsertCustomer(ctx context.Context, cust *models.Customer) (int64, error) {
	return c.upsert(ctx, "upsert_customer", "customer", cust.ExternalID, NewCustomerPayload(cust))
}

func (c *Client) DeleteCustomer(ctx context.Context, externalID int64) error {
	return c.remove(ctx, "delete_customer", "customer", externalID)
}

func (c *Client) UpsertCarrier(ctx context.Context, carrier *models.Carrier) (int64, error) {
	return c.upsert(ctx, "upsert_carrier", "carrier", carrier.ExternalID, NewCarrierPayload(carrier))
}

func (c *Client) DeleteCarrier(ctx context.Context, externalID int64) error {
	return c.remove(ctx, "delete_carrier", "carrier", externalID)
}

func (c *Client) UpsertRateCard(ctx context.Context, rc *models.RateCard, rates []models.Rate, carrierExternalID int64) (int64, error) {
	return c.upsert(ctx, "upsert_rate_card", "rate-card", rc.ExternalID, NewRateCardPayload(rc, rates, carrierExternalID))
}

func (c *Client) DeleteRateCard(ctx context.Context, externalID int64) error {
	return c.remove(ctx, "delete_rate_card", "rate-card", externalID)
}

func (c *Client) UpsertRoute(ctx context.Context, rt *models.Route, carrierExternalIDs []int64) (int64, error) {
	return c.upsert(ctx, "upsert_route", "routing", rt.ExternalID, NewRoutePayload(rt, carrierExternalIDs))
}

func (c *Client) DeleteRoute(ctx context.Context, externalID int64) error {
	return c.remove(ctx, "delete_route", "routing", externalID)
}

// Status describes the connection to the softswitch
type Status struct {
	Mode           string     `json:"mode"`
	BaseURL        string     `json:"base_url"`
	Reachable      bool       `json:"reachable"`
	LatencyMs      int64      `json:"latency_ms"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Status pings the API. Failures are reported in the result, not as an error.
func (c *Client) Status(ctx context.Context) Status {
	st := Status{Mode: "live", BaseURL: c.cfg.BaseURL}
	if c.cfg.MockMode {
		st.Mode = "mock"
		st.Reachable = true
		return st
	}

	start := time.Now()
	err := c.do(ctx, "status", http.MethodGet, "/setup/account", nil, nil)
	st.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		st.Error = err.Error()
	} else {
		st.Reachable = true
	}
	if exp := c.TokenExpiry(); !exp.IsZero() {
		st.TokenExpiresAt = &exp
	}
	return st
}
