package backend

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	catalog "github.com/eugener/celeste/internal"
)

// listEnvelopes are the object fields the backend has been seen to wrap
// product lists in, checked in order.
var listEnvelopes = []string{"data", "products", "items"}

// decodeProducts extracts a product list from a backend payload that is
// either a bare array or an object wrapping one.
func decodeProducts(body []byte) ([]catalog.Product, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("backend: invalid JSON payload")
	}
	arr := gjson.ParseBytes(body)
	if arr.IsObject() {
		found := false
		for _, field := range listEnvelopes {
			if r := arr.Get(field); r.IsArray() {
				arr, found = r, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("backend: payload has no product list")
		}
	}
	if !arr.IsArray() {
		return nil, fmt.Errorf("backend: payload is %s, want array", arr.Type)
	}

	var out []catalog.Product
	if err := json.Unmarshal([]byte(arr.Raw), &out); err != nil {
		return nil, fmt.Errorf("backend: decode products: %w", err)
	}
	if out == nil {
		out = []catalog.Product{}
	}
	return out, nil
}

// decodeProduct extracts a single product from a bare object or one wrapped
// under "data" or "product".
func decodeProduct(body []byte) (*catalog.Product, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("backend: invalid JSON payload")
	}
	doc := gjson.ParseBytes(body)
	for _, field := range []string{"data", "product"} {
		if r := doc.Get(field); r.IsObject() {
			doc = r
			break
		}
	}
	if !doc.IsObject() {
		return nil, fmt.Errorf("backend: payload is %s, want object", doc.Type)
	}

	var p catalog.Product
	if err := json.Unmarshal([]byte(doc.Raw), &p); err != nil {
		return nil, fmt.Errorf("backend: decode product: %w", err)
	}
	return &p, nil
}
