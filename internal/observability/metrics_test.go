package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/printhub/backoffice/internal/jobs"
	"github.com/printhub/backoffice/internal/reconcile"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesSharedCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = reconcile.NewMetrics(metrics.Registerer())
	_ = jobs.Track("ledger:overdue").End(nil)

	body := scrape(t, metrics)
	require.Contains(t, body, `backoffice_jobs_total{job="ledger:overdue",status="success"} 1`)
	require.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/orders/{id}")

	req := httptest.NewRequest(http.MethodGet, "/orders/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `backoffice_http_requests_total{code="418",route="/orders/{id}"} 1`)
	require.Contains(t, body, `backoffice_http_request_duration_seconds_bucket{route="/orders/{id}"`)
	require.Contains(t, body, "backoffice_http_requests_in_flight 0")
}

func TestNilMetricsIsUnavailable(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
