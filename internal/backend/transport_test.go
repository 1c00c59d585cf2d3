package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/dnscache"
	"golang.org/x/oauth2"

	catalog "github.com/eugener/celeste/internal"
)

func TestNewTransport(t *testing.T) {
	t.Parallel()

	tr := NewTransport(nil)
	if tr.MaxIdleConnsPerHost != 100 || tr.MaxConnsPerHost != 200 {
		t.Errorf("pool = %d/%d, want 100/200", tr.MaxIdleConnsPerHost, tr.MaxConnsPerHost)
	}
	if tr.IdleConnTimeout != 90*time.Second {
		t.Errorf("IdleConnTimeout = %v, want 90s", tr.IdleConnTimeout)
	}
	if tr.DialContext != nil {
		t.Error("DialContext should be nil without a resolver")
	}
	if NewTransport(&dnscache.Resolver{}).DialContext == nil {
		t.Error("DialContext should be set with a resolver")
	}
}

func TestNewTransport_ResolverDials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(&dnscache.Resolver{})}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("expired") }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestAuthTransport_DoesNotMutateRequest(t *testing.T) {
	t.Parallel()

	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if got := r.Header.Get("Authorization"); got != "Bearer svc" {
			t.Errorf("Authorization = %q, want Bearer svc", got)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	tr := newAuthTransport(base, "svc")

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://backend/products", nil)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if req.Header.Get("Authorization") != "" {
		t.Error("original request was mutated")
	}
}

func TestAuthTransport_TokenSourceError(t *testing.T) {
	t.Parallel()

	tr := &authTransport{service: failingSource{}}
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://backend/products", nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatal("expected token source error")
	}

	// A caller bearer bypasses the service source entirely.
	tr.base = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	ctx := catalog.ContextWithBearer(context.Background(), "user")
	req, _ = http.NewRequestWithContext(ctx, http.MethodGet, "http://backend/products", nil)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
}
