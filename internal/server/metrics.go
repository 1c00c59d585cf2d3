package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/celeste/internal/telemetry"
)

// unmatchedRoute labels requests no route matched, keeping scanner paths
// out of the label set.
const unmatchedRoute = "unmatched"

// statusLabels holds pre-rendered status codes for the status label.
var statusLabels [600]string

func init() {
	for i := range statusLabels {
		statusLabels[i] = strconv.Itoa(i)
	}
}

func statusLabel(code int) string {
	if code < 0 || code >= len(statusLabels) {
		return strconv.Itoa(code)
	}
	return statusLabels[code]
}

// metricsMiddleware records request count, duration and in-flight requests
// per route pattern.
func metricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			sw.wroteHeader = false

			start := time.Now()
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start).Seconds()

			status := sw.status
			sw.ResponseWriter = nil
			statusWriterPool.Put(sw)

			route := routePattern(r)
			m.RequestsTotal.WithLabelValues(r.Method, route, statusLabel(status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed)
		})
	}
}

// routePattern returns the matched chi route pattern, or unmatchedRoute.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
