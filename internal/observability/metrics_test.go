package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDomainCollectors(t *testing.T) {
	m := NewMetrics()
	m.ObserveStockMovement("sale", 8)
	m.ObserveStockMovement("sale", 2)
	m.ObserveStockMovement("sale", 0)
	m.ObserveAllocationRetry("sell")
	m.ObserveAllocationRetry("sell")
	m.ObserveAllocationExhausted("dispense")
	m.ObserveStockDrift(3)
	m.ObserveTransition("prescription", "dispense")

	require.Equal(t, 10.0, testutil.ToFloat64(m.stockUnits.WithLabelValues("sale")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("sell")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.exhausted.WithLabelValues("dispense")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.drift))
	require.Contains(t, scrape(t, m), `odyssey_pharmacy_transitions_total{action="dispense",entity="prescription"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStockMovement("sale", 1)
	m.ObserveTransition("supply_request", "respond")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
