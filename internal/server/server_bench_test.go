package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	// TextHandler(io.Discard) still processes/formats attrs (accurate alloc count)
	// but suppresses log output during benchmarks. Do NOT use a no-op handler with
	// Enabled()=false -- that skips all work, undercounting allocations.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

const listTarget = "/v1/products?category_id=5&page=1&limit=20&store_ids=2,1"

func BenchmarkListProductsCached(b *testing.B) {
	h, _ := newTestHandler(b)
	do(h, http.MethodGet, listTarget, "", nil) // warm

	b.ResetTimer()
	for b.Loop() {
		rec := do(h, http.MethodGet, listTarget, "", nil)
		if rec.Code != http.StatusOK {
			b.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
		}
	}
}

func BenchmarkListProductsCachedParallel(b *testing.B) {
	h, _ := newTestHandler(b)
	do(h, http.MethodGet, listTarget, "", nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			rec := do(h, http.MethodGet, listTarget, "", nil)
			if rec.Code != http.StatusOK {
				b.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
			}
		}
	})
}

func BenchmarkCheckout(b *testing.B) {
	h, _ := newTestHandler(b)
	const order = `{"store_id":"1","items":[{"product_id":"1","quantity":1}]}`

	b.ResetTimer()
	for b.Loop() {
		req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(order))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
		}
	}
}

func BenchmarkHealthz(b *testing.B) {
	h, _ := newTestHandler(b)

	b.ResetTimer()
	for b.Loop() {
		rec := do(h, http.MethodGet, "/healthz", "", nil)
		if rec.Code != http.StatusOK {
			b.Fatalf("status = %d, want 200", rec.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Handler-only microbenchmarks
//
// The benchmarks above include httptest.NewRequest and NewRecorder overhead.
// The variants below reuse a header map and discard the body to isolate
// handler allocations.
// ---------------------------------------------------------------------------

// discardResponseWriter is a minimal ResponseWriter for benchmarks.
// Captures status code, discards body, reuses header map between iterations.
type discardResponseWriter struct {
	hdr  http.Header
	code int
}

func (w *discardResponseWriter) Header() http.Header        { return w.hdr }
func (w *discardResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *discardResponseWriter) WriteHeader(code int)        { w.code = code }

func (w *discardResponseWriter) reset() {
	clear(w.hdr)
	w.code = http.StatusOK
}

func BenchmarkListProductsCachedHandler(b *testing.B) {
	h, _ := newTestHandler(b)
	do(h, http.MethodGet, listTarget, "", nil)
	w := &discardResponseWriter{hdr: make(http.Header, 8), code: http.StatusOK}

	b.ResetTimer()
	for b.Loop() {
		req, _ := http.NewRequest(http.MethodGet, listTarget, nil)
		w.reset()
		h.ServeHTTP(w, req)
		if w.code != http.StatusOK {
			b.Fatalf("status = %d, want 200", w.code)
		}
	}
}

func BenchmarkCheckoutHandler(b *testing.B) {
	h, _ := newTestHandler(b)
	body := []byte(`{"items":[{"product_id":"1"}]}`)
	hdr := http.Header{"Content-Type": {"application/json"}}
	w := &discardResponseWriter{hdr: make(http.Header, 8), code: http.StatusOK}

	b.ResetTimer()
	for b.Loop() {
		req, _ := http.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewReader(body))
		req.Header = hdr
		w.reset()
		h.ServeHTTP(w, req)
		if w.code != http.StatusOK {
			b.Fatalf("status = %d, want 200", w.code)
		}
	}
}
