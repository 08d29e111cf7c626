package lcr

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

func seed(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	now := time.Now().UTC()

	carriers := []*models.Carrier{
		{ID: "k-alpha", Name: "Alpha", Host: "a.example.com", Port: 5060, Protocol: "udp", Priority: 10, Status: models.CarrierStatusActive},
		{ID: "k-bravo", Name: "Bravo", Host: "b.example.com", Port: 5060, Protocol: "udp", Priority: 5, Status: models.CarrierStatusActive},
		{ID: "k-charlie", Name: "Charlie", Host: "c.example.com", Port: 5060, Protocol: "udp", Priority: 5, Status: models.CarrierStatusActive},
		{ID: "k-down", Name: "Down", Host: "d.example.com", Port: 5060, Protocol: "udp", Priority: 1, Status: models.CarrierStatusDisabled},
	}
	for _, c := range carriers {
		c.CreatedAt, c.UpdatedAt = now, now
		if err := s.CreateCarrier(ctx, c); err != nil {
			t.Fatalf("CreateCarrier: %v", err)
		}
	}

	cards := []struct {
		card  *models.RateCard
		rates []models.Rate
	}{
		{&models.RateCard{ID: "buy-a", Name: "Alpha UK", Direction: models.DirectionBuy, CarrierID: "k-alpha"},
			[]models.Rate{{Prefix: "44", RatePerMin: models.NewMoney(0, 9000)}, {Prefix: "447", RatePerMin: models.NewMoney(0, 5000)}}},
		{&models.RateCard{ID: "buy-b", Name: "Bravo UK", Direction: models.DirectionBuy, CarrierID: "k-bravo"},
			[]models.Rate{{Prefix: "44", RatePerMin: models.NewMoney(0, 5000)}}},
		{&models.RateCard{ID: "buy-c", Name: "Charlie UK", Direction: models.DirectionBuy, CarrierID: "k-charlie"},
			[]models.Rate{{Prefix: "4477", RatePerMin: models.NewMoney(0, 5000)}}},
		{&models.RateCard{ID: "buy-d", Name: "Down UK", Direction: models.DirectionBuy, CarrierID: "k-down"},
			[]models.Rate{{Prefix: "44", RatePerMin: models.NewMoney(0, 1000)}}},
		{&models.RateCard{ID: "sell-1", Name: "Retail", Direction: models.DirectionSell},
			[]models.Rate{{Prefix: "44", RatePerMin: models.NewMoney(0, 20000)}, {Prefix: "447", RatePerMin: models.NewMoney(0, 10000)}}},
	}
	for _, c := range cards {
		c.card.Currency = "USD"
		if err := s.CreateRateCard(ctx, c.card); err != nil {
			t.Fatalf("CreateRateCard: %v", err)
		}
		if err := s.ReplaceRates(ctx, c.card.ID, c.rates); err != nil {
			t.Fatalf("ReplaceRates: %v", err)
		}
	}

	routes := []*models.Route{
		{ID: "r-all", Name: "Default", Prefix: "", Strategy: models.RouteStrategyLCR, CarrierIDs: []string{"k-alpha"}, Enabled: true},
		{ID: "r-uk", Name: "UK mobile", Prefix: "447", Strategy: models.RouteStrategyPriority, CarrierIDs: []string{"k-bravo", "k-alpha"}, Enabled: true},
		{ID: "r-off", Name: "Disabled", Prefix: "4477", Strategy: models.RouteStrategyLCR, CarrierIDs: []string{"k-charlie"}, Enabled: false},
	}
	for _, r := range routes {
		if err := s.CreateRoute(ctx, r); err != nil {
			t.Fatalf("CreateRoute: %v", err)
		}
	}
	return s
}

func TestLookupRanksCandidates(t *testing.T) {
	e := NewEngine(seed(t))

	res, err := e.Lookup(context.Background(), "+44 7700 900123", "")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	type row struct {
		Carrier string
		Prefix  string
		Rate    models.Money
	}
	var got []row
	for _, c := range res.Candidates {
		got = append(got, row{c.CarrierName, c.Prefix, c.RatePerMin})
	}
	// all three cost 0.005: Bravo and Charlie share priority 5, so name decides; Alpha has 10
	want := []row{
		{"Bravo", "44", models.NewMoney(0, 5000)},
		{"Charlie", "4477", models.NewMoney(0, 5000)},
		{"Alpha", "447", models.NewMoney(0, 5000)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	if res.Sell == nil || res.Sell.Prefix != "447" {
		t.Fatalf("expected sell quote on 447, got %+v", res.Sell)
	}
	if res.Margin == nil || *res.Margin != models.NewMoney(0, 5000) {
		t.Errorf("margin = %v, want 0.005", res.Margin)
	}
	if res.MarginPercent == nil || *res.MarginPercent != 50 {
		t.Errorf("margin percent = %v, want 50", res.MarginPercent)
	}
	if res.Route == nil || res.Route.ID != "r-uk" {
		t.Errorf("expected route r-uk, got %+v", res.Route)
	}
}

func TestLookupFallbacks(t *testing.T) {
	e := NewEngine(seed(t))

	res, err := e.Lookup(context.Background(), "+33 1 00 00 00 00", "sell-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(res.Candidates) != 0 || res.Sell != nil || res.Margin != nil {
		t.Errorf("expected no rates for +33, got %+v", res)
	}
	if res.Route == nil || res.Route.ID != "r-all" {
		t.Errorf("expected catch-all route, got %+v", res.Route)
	}

	if _, err := e.Lookup(context.Background(), "abc", ""); err != ErrInvalidNumber {
		t.Errorf("expected ErrInvalidNumber, got %v", err)
	}
}
