package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
)

func withServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	prevURL, prevKey, prevFormat := serverURL, apiKey, outputFormat
	serverURL, apiKey, outputFormat = srv.URL+"/", "test-key", "table"
	t.Cleanup(func() { serverURL, apiKey, outputFormat = prevURL, prevKey, prevFormat })
}

func TestCallSendsTokenAndDecodes(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/admin/customers", r.URL.Path)
		assert.Equal(t, "suspended", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(models.NewListResponse([]models.Customer{{ID: "c1", Name: "Acme"}}, 7))
	})

	var out models.ListResponse[models.Customer]
	err := call(context.Background(), "GET", "/api/admin/customers", url.Values{"status": {"suspended"}}, nil, &out)
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Acme", out.Items[0].Name)
	assert.Equal(t, 7, out.Total)
}

func TestCallReturnsAPIError(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"validation_error","message":"Request validation failed","fields":{"email":"is required"}}`))
	})

	err := call(context.Background(), "POST", "/api/admin/customers", nil, map[string]string{}, nil)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Contains(t, err.Error(), "email: is required")
}

func TestCallNonJSONError(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	err := call(context.Background(), "GET", "/health", nil, nil, nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "http_error", apiErr.Code)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestPrintStructuredYAMLUsesJSONNames(t *testing.T) {
	prev := outputFormat
	outputFormat = "yaml"
	defer func() { outputFormat = prev }()

	var b strings.Builder
	require.NoError(t, printStructured(&b, models.Customer{AccountNumber: "VX00000001", Balance: models.NewMoney(12, 500000)}))
	assert.Contains(t, b.String(), "account_number: VX00000001")
	assert.Contains(t, b.String(), "balance: \"12.5")
}

func TestSyncLabel(t *testing.T) {
	assert.Equal(t, "pending", syncLabel(models.SyncState{}))
	assert.Equal(t, "error", syncLabel(models.SyncState{SyncError: "boom"}))

	var s models.SyncState
	s.MarkSynced(42, time.Now())
	assert.Equal(t, "#42", syncLabel(s))
}
