// Package metrics defines the Prometheus instruments of the back office and serves /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voxlane"

var (
	// HTTPRequests counts requests by method, route template and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests handled",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ConnexCSCalls counts softswitch API calls. Outcome is ok, error or mock.
	ConnexCSCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connexcs",
		Name:      "calls_total",
		Help:      "Softswitch API calls",
	}, []string{"operation", "outcome"})

	ConnexCSDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "connexcs",
		Name:      "call_duration_seconds",
		Help:      "Softswitch API call latency including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	SyncResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "platform_sync",
		Name:      "results_total",
		Help:      "Entities pushed to the softswitch by kind and outcome",
	}, []string{"kind", "outcome"})

	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "platform_sync",
		Name:      "run_duration_seconds",
		Help:      "Duration of full sync runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// CleanupDeleted counts rows removed by retention tasks
	CleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "deleted_total",
		Help:      "Rows removed by retention tasks",
	}, []string{"task"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Aggregate cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	LedgerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "transactions_total",
		Help:      "Ledger transactions by kind and outcome",
	}, []string{"kind", "outcome"})

	CDRsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "cdrs_ingested_total",
		Help:      "Call records ingested by billing status",
	}, []string{"billing_status"})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Audit entries that could not be stored",
	})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency per route template
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Outcome maps an error to the outcome label
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
