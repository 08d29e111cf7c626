package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHTTPMiddlewareNamesSpanByRoute(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	provider := NewProvider(tp, "test")

	r := mux.NewRouter()
	r.Use(HTTPMiddleware(provider))
	r.HandleFunc("/api/admin/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/customers/abc", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/admin/customers/{id}", spans[0].Name)
	assert.NotEmpty(t, rec.Header().Get("Traceparent"))
}

func TestInjectHTTPHeaders(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	provider := NewProvider(tp, "test")

	ctx, span := provider.StartSpan(context.Background(), "outbound")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "http://softswitch/api", nil)
	InjectHTTPHeaders(ctx, req)
	assert.NotEmpty(t, req.Header.Get("traceparent"))
}

func TestDisabledTracer(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "svc"}, nil)
	require.NoError(t, err)
	_, span := p.StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}
