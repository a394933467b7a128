package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestPostingCountersExposed(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("CLIENT_INVOICE", 4)
	metrics.ObservePosting("CLIENT_INVOICE", 2)
	metrics.ObservePostingFailure("CASH_SALE", "validation")

	body := scrape(t, metrics)
	for _, want := range []string{
		`ledger_postings_total{type="CLIENT_INVOICE"} 2`,
		`ledger_entries_total{type="CLIENT_INVOICE"} 6`,
		`ledger_posting_failures_total{reason="validation",type="CASH_SALE"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %s, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePosting("CASH_SALE", 2)
	metrics.ObservePostingFailure("CASH_SALE", "period")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "ledger_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "ledger_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
