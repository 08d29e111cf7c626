// Package lcr ranks carriers for a dialed number by the price of their buy rates.
package lcr

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/voxlane/backoffice/pkg/billing"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

// ErrInvalidNumber is returned for numbers without digits
var ErrInvalidNumber = errors.New("number contains no digits")

// Candidate is one carrier able to terminate the number
type Candidate struct {
	CarrierID     string       `json:"carrier_id"`
	CarrierName   string       `json:"carrier_name"`
	Priority      int          `json:"priority"`
	RateCardID    string       `json:"rate_card_id"`
	RateCardName  string       `json:"rate_card_name"`
	Prefix        string       `json:"prefix"`
	Destination   string       `json:"destination,omitempty"`
	RatePerMin    models.Money `json:"rate_per_min"`
	ConnectionFee models.Money `json:"connection_fee"`
}

// SellQuote is the customer price for the number
type SellQuote struct {
	RateCardID   string       `json:"rate_card_id"`
	RateCardName string       `json:"rate_card_name"`
	Prefix       string       `json:"prefix"`
	Destination  string       `json:"destination,omitempty"`
	RatePerMin   models.Money `json:"rate_per_min"`
}

// RouteMatch is the configured route that would carry the call
type RouteMatch struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Prefix     string   `json:"prefix"`
	Strategy   string   `json:"strategy"`
	CarrierIDs []string `json:"carrier_ids"`
}

// Result is the answer to a lookup
type Result struct {
	Number        string        `json:"number"`
	Candidates    []Candidate   `json:"candidates"`
	Sell          *SellQuote    `json:"sell,omitempty"`
	Margin        *models.Money `json:"margin,omitempty"`
	MarginPercent *float64      `json:"margin_percent,omitempty"`
	Route         *RouteMatch   `json:"route,omitempty"`
}

// Engine answers least-cost lookups from stored rate cards
type Engine struct {
	store store.Store
}

// NewEngine creates a lookup engine
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Lookup ranks every active carrier with a buy rate for number: cheapest first,
// then lower priority value, then carrier name. When sellCardID is empty every
// sell card is considered for the customer price.
func (e *Engine) Lookup(ctx context.Context, number, sellCardID string) (*Result, error) {
	digits := models.NormalizeNumber(number)
	if digits == "" {
		return nil, ErrInvalidNumber
	}
	prefixes := models.PrefixesOf(digits)

	buys, err := e.store.FindRatesByPrefixes(ctx, store.RateQuery{Direction: models.DirectionBuy, Prefixes: prefixes})
	if err != nil {
		return nil, fmt.Errorf("failed to look up buy rates: %w", err)
	}
	carriers, err := e.store.ListCarriers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list carriers: %w", err)
	}
	byID := make(map[string]*models.Carrier, len(carriers))
	for _, c := range carriers {
		byID[c.ID] = c
	}

	result := &Result{Number: digits, Candidates: []Candidate{}}
	for _, m := range longestPerCard(buys) {
		carrier, ok := byID[m.CarrierID]
		if !ok || !carrier.IsActive() {
			continue
		}
		result.Candidates = append(result.Candidates, Candidate{
			CarrierID:     carrier.ID,
			CarrierName:   carrier.Name,
			Priority:      carrier.Priority,
			RateCardID:    m.CardID,
			RateCardName:  m.CardName,
			Prefix:        m.Rate.Prefix,
			Destination:   m.Rate.Destination,
			RatePerMin:    m.Rate.RatePerMin,
			ConnectionFee: m.Rate.ConnectionFee,
		})
	}
	sortCandidates(result.Candidates)

	sells, err := e.store.FindRatesByPrefixes(ctx, store.RateQuery{Direction: models.DirectionSell, CardID: sellCardID, Prefixes: prefixes})
	if err != nil {
		return nil, fmt.Errorf("failed to look up sell rates: %w", err)
	}
	if best := bestSell(sells); best != nil {
		result.Sell = &SellQuote{
			RateCardID:   best.CardID,
			RateCardName: best.CardName,
			Prefix:       best.Rate.Prefix,
			Destination:  best.Rate.Destination,
			RatePerMin:   best.Rate.RatePerMin,
		}
		if len(result.Candidates) > 0 {
			margin := best.Rate.RatePerMin - result.Candidates[0].RatePerMin
			result.Margin = &margin
			if best.Rate.RatePerMin > 0 {
				pct := float64(margin) / float64(best.Rate.RatePerMin) * 100
				result.MarginPercent = &pct
			}
		}
	}

	route, err := e.matchRoute(ctx, prefixes)
	if err != nil {
		return nil, err
	}
	result.Route = route
	return result, nil
}

// longestPerCard keeps the longest-prefix rate of each card
func longestPerCard(matches []store.RateMatch) []store.RateMatch {
	byCard := make(map[string][]store.RateMatch)
	order := []string{}
	for _, m := range matches {
		if _, ok := byCard[m.CardID]; !ok {
			order = append(order, m.CardID)
		}
		byCard[m.CardID] = append(byCard[m.CardID], m)
	}
	out := make([]store.RateMatch, 0, len(order))
	for _, id := range order {
		out = append(out, *billing.LongestMatch(byCard[id]))
	}
	return out
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].RatePerMin != cs[j].RatePerMin {
			return cs[i].RatePerMin < cs[j].RatePerMin
		}
		if cs[i].Priority != cs[j].Priority {
			return cs[i].Priority < cs[j].Priority
		}
		return cs[i].CarrierName < cs[j].CarrierName
	})
}

// bestSell picks the longest prefix over all cards, the lowest rate on ties
func bestSell(matches []store.RateMatch) *store.RateMatch {
	var best *store.RateMatch
	for _, m := range longestPerCard(matches) {
		m := m
		switch {
		case best == nil,
			len(m.Rate.Prefix) > len(best.Rate.Prefix),
			len(m.Rate.Prefix) == len(best.Rate.Prefix) && m.Rate.RatePerMin < best.Rate.RatePerMin:
			best = &m
		}
	}
	return best
}

// matchRoute returns the enabled route with the longest matching prefix.
// A route with an empty prefix matches every number.
func (e *Engine) matchRoute(ctx context.Context, prefixes []string) (*RouteMatch, error) {
	routes, err := e.store.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	wanted := make(map[string]bool, len(prefixes)+1)
	for _, p := range prefixes {
		wanted[p] = true
	}
	wanted[""] = true

	var best *models.Route
	for _, r := range routes {
		if !r.Enabled || !wanted[r.Prefix] {
			continue
		}
		if best == nil || len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return &RouteMatch{
		ID:         best.ID,
		Name:       best.Name,
		Prefix:     best.Prefix,
		Strategy:   best.Strategy,
		CarrierIDs: best.CarrierIDs,
	}, nil
}
