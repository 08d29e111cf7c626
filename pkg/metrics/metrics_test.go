package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/backoffice/pkg/models"
)

type fakeCounts struct {
	counts *models.AdminCounts
	err    error
}

func (f fakeCounts) AdminCounts(context.Context, time.Time) (*models.AdminCounts, error) {
	return f.counts, f.err
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Middleware)
	r.HandleFunc("/api/portal/dids/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "/api/portal/dids/{id}", "409"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/portal/dids/d1", nil))
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "/api/portal/dids/{id}", "409"))

	assert.Equal(t, before+1, after)
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(fakeCounts{counts: &models.AdminCounts{Customers: 3, Carriers: 2}}, nil)
	require.NoError(t, reg.Register(c))

	// 11 entity gauges plus the up gauge
	assert.Equal(t, 12, testutil.CollectAndCount(c))

	failing := NewCollector(fakeCounts{err: errors.New("db down")}, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(failing))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
