// Package backend is the HTTP client for the upstream catalog REST API.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/circuitbreaker"
	"github.com/eugener/celeste/internal/telemetry"
)

// Backend endpoint paths.
const (
	PathProducts        = "/products"
	PathProductsPricing = "/products/pricing"
	PathCheckout        = "/checkout"

	defaultTimeout  = 10 * time.Second
	maxResponseBody = 16 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration // per call; 0 = 10s
	ServiceToken string        // sent when the caller has no bearer token
	Resolver     *dnscache.Resolver
	Breaker      *circuitbreaker.Breaker // nil = no breaker
	Metrics      *telemetry.Metrics      // nil = no metrics
	Transport    http.RoundTripper       // nil = NewTransport(Resolver)
}

// Client calls the catalog backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *circuitbreaker.Breaker
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// New creates a Client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base URL %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := opts.Transport
	if base == nil {
		base = NewTransport(opts.Resolver)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: timeout,
		http:    &http.Client{Transport: newAuthTransport(base, opts.ServiceToken)},
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		tracer:  telemetry.Tracer("celeste/backend"),
	}, nil
}

// ListProducts fetches a product list from path with the given query.
func (c *Client) ListProducts(ctx context.Context, path string, query url.Values) ([]catalog.Product, error) {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return decodeProducts(body)
}

// GetProduct fetches a single product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	body, err := c.do(ctx, http.MethodGet, PathProducts+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeProduct(body)
}

// Checkout forwards an order body verbatim and returns the backend response.
func (c *Client) Checkout(ctx context.Context, order []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, PathCheckout, nil, order)
}

// do performs one backend call behind the circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, fmt.Errorf("%s %s: %w", method, path, catalog.ErrBackendUnavailable)
	}

	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	out, status, err := c.roundTrip(ctx, method, path, query, body)
	elapsed := time.Since(start)

	if c.breaker != nil {
		c.breaker.Record(err)
	}

	endpoint := metricEndpoint(path)
	if c.metrics != nil {
		c.metrics.BackendDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
	}
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend call failed")
		if c.metrics != nil {
			label := "error"
			if status > 0 {
				label = strconv.Itoa(status)
			}
			c.metrics.BackendErrors.WithLabelValues(endpoint, label).Inc()
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := catalog.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, parseAPIError(resp)
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("backend: read response: %w", err)
	}
	return out, resp.StatusCode, nil
}

// metricEndpoint collapses product detail paths into one label value.
func metricEndpoint(path string) string {
	if rest, ok := strings.CutPrefix(path, PathProducts+"/"); ok && rest != "pricing" {
		return PathProducts + "/{id}"
	}
	return path
}
