package backend

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"golang.org/x/oauth2"

	catalog "github.com/eugener/celeste/internal"
)

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			var lastErr error
			for _, ip := range ips {
				conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		}
	}
	return t
}

// authTransport sets the Authorization header on every outbound request.
// The caller's own bearer token (from the request context) wins; the
// service token source is the fallback for anonymous callers.
type authTransport struct {
	base    http.RoundTripper
	service oauth2.TokenSource // nil = forward caller token only
}

func newAuthTransport(base http.RoundTripper, serviceToken string) *authTransport {
	t := &authTransport{base: base}
	if serviceToken != "" {
		t.service = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: serviceToken,
			TokenType:   "Bearer",
		})
	}
	return t
}

// RoundTrip clones the request and injects the bearer header.
func (t *authTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	var tok *oauth2.Token
	if bearer := catalog.BearerFromContext(r.Context()); bearer != "" {
		tok = &oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}
	} else if t.service != nil {
		var err error
		if tok, err = t.service.Token(); err != nil {
			return nil, fmt.Errorf("backend: service token: %w", err)
		}
	}
	if tok == nil {
		return t.getBase().RoundTrip(r)
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return t.getBase().RoundTrip(r2)
}

func (t *authTransport) getBase() http.RoundTripper {
	if t.base != nil {
		return t.base
	}
	return http.DefaultTransport
}
