// Package server implements the HTTP transport layer for the Celeste gateway.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/celeste/internal/app"
	"github.com/eugener/celeste/internal/ratelimit"
	"github.com/eugener/celeste/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Catalog        *app.CatalogService
	AdminKey       string             // empty = admin API not mounted
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	RateLimiter    *ratelimit.Limiter // nil = no rate limiting
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Storefront API; callers authenticate against the backend, not us.
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.credentials)
		r.Use(s.rateLimit)
		r.Get("/products", s.handleListProducts)
		r.Get("/products/pricing", s.handleListProductsWithPricing)
		r.Get("/products/{id}", s.handleGetProduct)
		r.Post("/checkout", s.handleCheckout)
	})

	// Cache debug surface
	if deps.AdminKey != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Get("/cache", s.handleCacheStats)
			r.Delete("/cache", s.handleCacheClear)
			r.Delete("/cache/categories/{id}", s.handleInvalidateCategory)
			r.Delete("/cache/stores/{id}", s.handleInvalidateStore)
			r.Delete("/cache/products/{id}", s.handleInvalidateProduct)
		})
	}

	return r
}

type server struct {
	deps Deps
}
