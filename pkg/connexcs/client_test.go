package connexcs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/retry"
)

type fakeSwitch struct {
	authCalls   atomic.Int32
	calls       atomic.Int32
	failures    int32 // respond 503 to this many API calls first
	rejectFirst bool  // respond 401 to the first API call
	status      int   // fixed status for API calls when non-zero

	mu         sync.Mutex
	lastBody   map[string]interface{}
	lastPath   string
	lastMethod string
}

func (f *fakeSwitch) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/jwt" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "api" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			n := f.authCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]interface{}{"token": "tok-" + string(rune('0'+n)), "expires_in": 3600})
			return
		}

		n := f.calls.Add(1)
		if r.Header.Get("Authorization") == "" {
			t.Errorf("request without bearer token")
		}
		if f.rejectFirst && n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if n <= f.failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			w.Write([]byte(`{"error":"bad"}`))
			return
		}

		f.mu.Lock()
		f.lastPath = r.URL.Path
		f.lastMethod = r.Method
		f.lastBody = nil
		json.NewDecoder(r.Body).Decode(&f.lastBody)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]int64{"id": 42})
	})
}

func (f *fakeSwitch) last() (string, string, map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMethod, f.lastPath, f.lastBody
}

func newTestClient(t *testing.T, f *fakeSwitch) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:  srv.URL + "/",
		Username: "api",
		Password: "secret",
		Retry:    retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2},
	}, nil)
}

func testCustomer() *models.Customer {
	return &models.Customer{
		ID:            "c1",
		AccountNumber: "VX-000001",
		Name:          "Acme",
		Email:         "ops@acme.test",
		Status:        models.CustomerStatusActive,
		Currency:      "USD",
		CreditLimit:   models.NewMoney(25, 0),
		ChannelLimit:  10,
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	f := &fakeSwitch{}
	c := newTestClient(t, f)
	ctx := context.Background()

	cust := testCustomer()
	id, err := c.UpsertCustomer(ctx, cust)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	method, path, body := f.last()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/customer", path)
	assert.Equal(t, "VX-000001", body["ref"])
	assert.Equal(t, "25.00", body["credit_limit"])

	cust.ExternalID = 42
	_, err = c.UpsertCustomer(ctx, cust)
	require.NoError(t, err)
	method, path, _ = f.last()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/customer/42", path)

	assert.Equal(t, int32(1), f.authCalls.Load(), "token should be reused")
}

func TestRetriesServerErrors(t *testing.T) {
	f := &fakeSwitch{failures: 2}
	c := newTestClient(t, f)

	id, err := c.UpsertCarrier(context.Background(), &models.Carrier{ID: "k1", Name: "Carrier", Host: "sip.example.com", Port: 5060, Status: models.CarrierStatusActive})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	f := &fakeSwitch{status: http.StatusUnprocessableEntity}
	c := newTestClient(t, f)

	_, err := c.UpsertRoute(context.Background(), &models.Route{ID: "r1", Name: "UK", Strategy: models.RouteStrategyLCR}, []int64{1})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestUnauthorizedRefreshesTokenOnce(t *testing.T) {
	f := &fakeSwitch{rejectFirst: true}
	c := newTestClient(t, f)

	_, err := c.UpsertCustomer(context.Background(), testCustomer())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.authCalls.Load())
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestTokenRefreshNearExpiry(t *testing.T) {
	f := &fakeSwitch{}
	c := newTestClient(t, f)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.accessToken(context.Background())
	require.NoError(t, err)

	now = now.Add(time.Hour - 30*time.Second)
	_, err = c.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.authCalls.Load(), "token inside the refresh window must be renewed")
}

func TestDeleteIgnoresMissingRemote(t *testing.T) {
	f := &fakeSwitch{status: http.StatusNotFound}
	c := newTestClient(t, f)

	require.NoError(t, c.DeleteCarrier(context.Background(), 7))
	require.NoError(t, c.DeleteCarrier(context.Background(), 0))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestMockMode(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://switch.invalid"}, nil)
	require.True(t, c.Mock())
	ctx := context.Background()

	first, err := c.UpsertCustomer(ctx, testCustomer())
	require.NoError(t, err)
	second, err := c.UpsertCarrier(ctx, &models.Carrier{ID: "k1"})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	kept, err := c.UpsertRateCard(ctx, &models.RateCard{ID: "rc", SyncState: models.SyncState{ExternalID: 9}}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), kept)

	st := c.Status(ctx)
	assert.Equal(t, "mock", st.Mode)
	assert.True(t, st.Reachable)

	_, err = c.accessToken(ctx)
	assert.ErrorIs(t, err, ErrMockMode)
}

func TestStatusReportsFailure(t *testing.T) {
	f := &fakeSwitch{status: http.StatusForbidden}
	c := newTestClient(t, f)

	st := c.Status(context.Background())
	assert.Equal(t, "live", st.Mode)
	assert.False(t, st.Reachable)
	assert.Contains(t, st.Error, "403")
	require.NotNil(t, st.TokenExpiresAt)
}

func TestRateCardPayloadDefaults(t *testing.T) {
	p := NewRateCardPayload(&models.RateCard{ID: "rc", Name: "UK buy", Direction: models.DirectionBuy, Currency: "USD"},
		[]models.Rate{{Prefix: "44", RatePerMin: models.NewMoney(0, 4500)}}, 12)

	require.Len(t, p.Rates, 1)
	assert.Equal(t, "0.0045", p.Rates[0].Rate)
	assert.Equal(t, 60, p.Rates[0].Increment)
	assert.Equal(t, int64(12), p.CarrierID)
}
