package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/invoices/{id}")

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/abc", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `carriernest_http_requests_total{code="418",route="/api/invoices/{id}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `carriernest_http_request_duration_seconds_bucket{route="/api/invoices/{id}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveReconciliation(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveReconciliation("driver", "payment.delete", "PARTIALLY_PAID")
	metrics.ObserveReconciliation("driver", "payment.delete", "PARTIALLY_PAID")

	body := scrape(t, metrics)
	want := `carriernest_invoice_reconciliations_total{kind="driver",operation="payment.delete",status="PARTIALLY_PAID"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in: %s", want, body)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveReconciliation("customer", "payment.create", "PAID")
}

func TestJobTrackerCountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	jobs := NewJobMetrics(registry)

	_ = jobs.Track("notify:driver_invoice_approved").End(nil)
	err := jobs.Track("notify:driver_invoice_approved").End(errors.New("smtp down"))
	if err == nil || err.Error() != "smtp down" {
		t.Fatalf("tracker must return the error untouched, got %v", err)
	}

	if got := testutil.ToFloat64(jobs.runs.WithLabelValues("notify:driver_invoice_approved", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(jobs.runs.WithLabelValues("notify:driver_invoice_approved", "failure")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}
