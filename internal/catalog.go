// Package catalog defines domain types for the Celeste catalog gateway.
// This package has no project imports -- it is the dependency root.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// --- Products ---

// ID is a backend identifier normalized to a string. The backend emits ids
// as JSON numbers or strings, and category references either as bare ids or
// as objects carrying an "id" field; all three decode to the same ID.
type ID string

// UnmarshalJSON accepts a number, a string, or an object with an "id" field.
func (id *ID) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if r.IsObject() {
		r = r.Get("id")
		if !r.Exists() {
			return fmt.Errorf("catalog: id object without \"id\" field: %s", data)
		}
	}
	switch r.Type {
	case gjson.Null:
		*id = ""
	case gjson.String:
		*id = ID(r.Str)
	case gjson.Number:
		*id = ID(r.Raw)
	default:
		return fmt.Errorf("catalog: invalid id %s", data)
	}
	return nil
}

// Product is a catalog product as returned by the backend. The gateway stores
// it opaquely; only ID and Categories are inspected (by invalidation).
//
// A decoded Product re-encodes to the exact backend document, so fields not
// modelled here reach clients unchanged.
type Product struct {
	ID         ID              `json:"id"`
	Name       string          `json:"name"`
	BasePrice  float64         `json:"base_price"`
	Pricing    *Pricing        `json:"pricing,omitempty"`
	Categories []ID            `json:"categories,omitempty"`
	Inventory  json.RawMessage `json:"inventory,omitempty"`

	raw json.RawMessage
}

type plainProduct Product

// UnmarshalJSON decodes the modelled fields and keeps the source document.
func (p *Product) UnmarshalJSON(data []byte) error {
	var v plainProduct
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Product(v)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the source document when the product was decoded,
// otherwise the modelled fields.
func (p Product) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	return json.Marshal(plainProduct(p))
}

// Pricing is the discount-resolved price block attached by pricing endpoints.
type Pricing struct {
	BasePrice          float64           `json:"base_price"`
	FinalPrice         float64           `json:"final_price"`
	DiscountApplied    float64           `json:"discount_applied"`
	DiscountPercentage float64           `json:"discount_percentage"`
	AppliedPriceLists  []json.RawMessage `json:"applied_price_lists,omitempty"`
}

// InCategory reports whether the product lists categoryID among its categories.
func (p *Product) InCategory(categoryID string) bool {
	for _, c := range p.Categories {
		if string(c) == categoryID {
			return true
		}
	}
	return false
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The bearer token is set later by the credentials middleware via mutation.
type requestMeta struct {
	RequestID string
	Bearer    string
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// BearerFromContext returns the caller's identity-provider token, or "".
func BearerFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.Bearer
	}
	return ""
}

// ContextWithBearer stores the caller's bearer token in the existing
// requestMeta if present; otherwise it allocates new metadata.
func ContextWithBearer(ctx context.Context, token string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Bearer = token
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Bearer: token})
}

// ViewerFingerprint returns a short stable digest of a bearer token, used to
// scope caller-specific cache entries without keeping the token itself.
// An empty token yields "".
func ViewerFingerprint(token string) string {
	if token == "" {
		return ""
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:8])
}
