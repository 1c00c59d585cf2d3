package querycache

import (
	"math"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Canonical parameter names. Invalidation matches on these, so every key
// that filters by category, store or product must use them.
const (
	ParamCategory   = "cat"
	ParamStores     = "stores"
	ParamProduct    = "product"
	ParamPage       = "page"
	ParamLimit      = "limit"
	ParamDiscounted = "discounted"
	ParamLat        = "lat"
	ParamLng        = "lng"
	ParamViewer     = "viewer"
)

const (
	segmentSep = "|"
	nameSep    = ':'
	listSep    = ","
)

// KeyBuilder builds a deterministic cache key from an endpoint and its query
// parameters. Segments are sorted by name, so the order in which parameters
// are set never changes the key.
type KeyBuilder struct {
	endpoint string
	params   map[string]string
}

// NewKey starts a key for the given endpoint. An empty endpoint is allowed.
func NewKey(endpoint string) *KeyBuilder {
	return &KeyBuilder{endpoint: endpoint, params: make(map[string]string)}
}

// Set records a string parameter. Empty values are omitted.
func (b *KeyBuilder) Set(name, value string) *KeyBuilder {
	value = strings.TrimSpace(value)
	if value == "" {
		delete(b.params, name)
		return b
	}
	b.params[name] = url.QueryEscape(value)
	return b
}

// SetInt records a positive integer parameter; zero and negatives mean unset.
func (b *KeyBuilder) SetInt(name string, v int) *KeyBuilder {
	if v <= 0 {
		delete(b.params, name)
		return b
	}
	b.params[name] = strconv.Itoa(v)
	return b
}

// SetBool records a flag only when it is true.
func (b *KeyBuilder) SetBool(name string, v bool) *KeyBuilder {
	if !v {
		delete(b.params, name)
		return b
	}
	b.params[name] = "1"
	return b
}

// SetFloat records a coordinate-like value rounded to 4 decimal places
// (about 11 m), so nearly identical coordinates share a key.
func (b *KeyBuilder) SetFloat(name string, v float64) *KeyBuilder {
	b.params[name] = strconv.FormatFloat(roundFloat(v), 'f', -1, 64)
	return b
}

// SetList records a set of values, sorted and de-duplicated.
func (b *KeyBuilder) SetList(name string, values []string) *KeyBuilder {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, url.QueryEscape(v))
		}
	}
	if len(out) == 0 {
		delete(b.params, name)
		return b
	}
	sort.Strings(out)
	b.params[name] = strings.Join(slices.Compact(out), listSep)
	return b
}

// String renders the key: endpoint|name:value|name:value.
func (b *KeyBuilder) String() string {
	names := make([]string, 0, len(b.params))
	for n := range b.params {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	if b.endpoint != "" {
		sb.WriteString(url.QueryEscape(b.endpoint))
	}
	for _, n := range names {
		if sb.Len() > 0 {
			sb.WriteString(segmentSep)
		}
		sb.WriteString(n)
		sb.WriteByte(nameSep)
		sb.WriteString(b.params[n])
	}
	return sb.String()
}

// roundFloat rounds to 4 decimals and folds -0 into 0.
func roundFloat(f float64) float64 {
	r := math.Round(f*10000) / 10000
	if r == 0 {
		return 0
	}
	return r
}

// Key is a parsed cache key.
type Key struct {
	Endpoint string
	Params   map[string][]string
}

// ParseKey splits a key into its endpoint and parameter segments. It accepts
// keys produced by KeyBuilder as well as hand-written ones such as
// "cat:5|page:1". Malformed segments are ignored.
func ParseKey(key string) Key {
	k := Key{Params: make(map[string][]string)}
	for i, seg := range strings.Split(key, segmentSep) {
		idx := strings.IndexByte(seg, nameSep)
		if idx < 0 {
			if i == 0 && seg != "" {
				k.Endpoint = unescape(seg)
			}
			continue
		}
		name := seg[:idx]
		for _, v := range strings.Split(seg[idx+1:], listSep) {
			if v != "" {
				k.Params[name] = append(k.Params[name], unescape(v))
			}
		}
	}
	return k
}

// Scoped reports whether the key filters on the named parameter.
func (k Key) Scoped(name string) bool {
	return len(k.Params[name]) > 0
}

// Has reports whether the named parameter contains value.
func (k Key) Has(name, value string) bool {
	return slices.Contains(k.Params[name], value)
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
