package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eugener/celeste/internal/app"
	"github.com/eugener/celeste/internal/ratelimit"
	"github.com/eugener/celeste/internal/telemetry"
)

func newMetricsHandler(t *testing.T, limiter *ratelimit.Limiter) (http.Handler, *telemetry.Metrics) {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	metrics := telemetry.NewMetrics(reg)
	h := New(Deps{
		Catalog:        app.NewCatalogService(&fakeBackend{}, newTestCache(t), metrics),
		RateLimiter:    limiter,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return h, metrics
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h, _ := newMetricsHandler(t, nil)

	// Hit a normal endpoint first to generate metrics.
	if rec := do(h, http.MethodGet, "/v1/products?category_id=5", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("products: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	do(h, http.MethodGet, "/v1/products?category_id=5", "", nil)

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, name := range []string{
		"celeste_requests_total",
		"celeste_request_duration_seconds",
		"celeste_cache_hits_total",
		"celeste_cache_misses_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics should contain %s", name)
		}
	}
}

func TestMetricsMiddleware_IncrementsCounters(t *testing.T) {
	t.Parallel()
	h, metrics := newMetricsHandler(t, nil)

	for range 3 {
		do(h, http.MethodGet, "/healthz", "", nil)
	}
	do(h, http.MethodGet, "/v1/products/1", "", nil)
	do(h, http.MethodGet, "/v1/products/2", "", nil)

	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/healthz", "200")); got != 3 {
		t.Errorf("requests_total for /healthz = %v, want 3", got)
	}
	// Route patterns keep product ids out of the label set.
	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/v1/products/{id}", "200")); got != 1 {
		t.Errorf("requests_total for /v1/products/{id} 200 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/v1/products/{id}", "404")); got != 1 {
		t.Errorf("requests_total for /v1/products/{id} 404 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveRequests); got != 0 {
		t.Errorf("active_requests = %v, want 0 after requests finish", got)
	}
}

func TestMetrics_RateLimitRejects(t *testing.T) {
	t.Parallel()
	h, metrics := newMetricsHandler(t, ratelimit.New(1))

	do(h, http.MethodGet, "/v1/products", "", nil)
	do(h, http.MethodGet, "/v1/products", "", nil)

	if got := testutil.ToFloat64(metrics.RateLimitRejects); got != 1 {
		t.Errorf("ratelimit_rejects_total = %v, want 1", got)
	}
}

func TestMetricsMiddleware_UnmatchedRoutesShareLabel(t *testing.T) {
	t.Parallel()
	h, metrics := newMetricsHandler(t, nil)

	for _, path := range []string{"/wp-login.php", "/.env", "/v2/anything"} {
		if rec := do(h, http.MethodGet, path, "", nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}

	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")); got != 3 {
		t.Errorf("requests_total for unmatched = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(metrics.RequestsTotal); n != 1 {
		t.Errorf("requests_total series = %d, want 1", n)
	}
}
