// Package app holds the catalog service: the cached data-fetching functions
// sitting between the HTTP handlers and the backend client.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/backend"
	"github.com/eugener/celeste/internal/querycache"
	"github.com/eugener/celeste/internal/telemetry"
)

// Cache key endpoints, also used as the metrics label.
const (
	endpointProducts = "products"
	endpointPricing  = "pricing"
	endpointProduct  = "product"
)

// Backend is the subset of backend.Client the service calls.
type Backend interface {
	ListProducts(ctx context.Context, path string, query url.Values) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	Checkout(ctx context.Context, order []byte) ([]byte, error)
}

// ProductQuery is a product listing request.
type ProductQuery struct {
	CategoryID     string
	Page           int // 0 = backend default
	Limit          int // 0 = backend default
	DiscountedOnly bool
	StoreIDs       []string
	Lat, Lng       *float64
}

// Values returns the backend query string parameters for q.
func (q ProductQuery) Values() url.Values {
	v := url.Values{}
	if q.CategoryID != "" {
		v.Set("category_id", q.CategoryID)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.DiscountedOnly {
		v.Set("discounted", "true")
	}
	if len(q.StoreIDs) > 0 {
		v.Set("store_ids", strings.Join(q.StoreIDs, ","))
	}
	if q.Lat != nil {
		v.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
	}
	if q.Lng != nil {
		v.Set("lng", strconv.FormatFloat(*q.Lng, 'f', -1, 64))
	}
	return v
}

// key returns the cache key for q under endpoint.
func (q ProductQuery) key(endpoint string) *querycache.KeyBuilder {
	b := querycache.NewKey(endpoint).
		Set(querycache.ParamCategory, q.CategoryID).
		SetInt(querycache.ParamPage, q.Page).
		SetInt(querycache.ParamLimit, q.Limit).
		SetBool(querycache.ParamDiscounted, q.DiscountedOnly).
		SetList(querycache.ParamStores, q.StoreIDs)
	if q.Lat != nil {
		b.SetFloat(querycache.ParamLat, *q.Lat)
	}
	if q.Lng != nil {
		b.SetFloat(querycache.ParamLng, *q.Lng)
	}
	return b
}

func (q ProductQuery) validate() error {
	if q.Page < 0 || q.Limit < 0 {
		return fmt.Errorf("%w: page and limit must not be negative", catalog.ErrBadRequest)
	}
	if q.Lat != nil && (*q.Lat < -90 || *q.Lat > 90) {
		return fmt.Errorf("%w: lat out of range", catalog.ErrBadRequest)
	}
	if q.Lng != nil && (*q.Lng < -180 || *q.Lng > 180) {
		return fmt.Errorf("%w: lng out of range", catalog.ErrBadRequest)
	}
	return nil
}

// Result is a product list and whether it was served from cache.
type Result struct {
	Products []catalog.Product
	Cached   bool
}

// CheckoutResult is the backend checkout response plus how many cache
// entries the order invalidated.
type CheckoutResult struct {
	Response    []byte
	Invalidated int
}

// CatalogService serves product queries through the query cache.
type CatalogService struct {
	backend Backend
	cache   *querycache.Cache // nil = caching disabled
	metrics *telemetry.Metrics
}

// NewCatalogService returns a CatalogService. A nil cache disables caching:
// every lookup goes to the backend and nothing is stored. A nil metrics
// disables instrumentation.
func NewCatalogService(b Backend, cache *querycache.Cache, metrics *telemetry.Metrics) *CatalogService {
	return &CatalogService{backend: b, cache: cache, metrics: metrics}
}

// GetProducts lists products matching q.
func (s *CatalogService) GetProducts(ctx context.Context, q ProductQuery) (*Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := q.key(endpointProducts).String()
	return s.cached(ctx, endpointProducts, key, func(ctx context.Context) ([]catalog.Product, error) {
		return s.backend.ListProducts(ctx, backend.PathProducts, q.Values())
	})
}

// GetProductsWithPricing lists products matching q with caller-specific
// pricing resolved. Entries are scoped to the caller's bearer token, since
// price lists differ per customer.
func (s *CatalogService) GetProductsWithPricing(ctx context.Context, q ProductQuery) (*Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := q.key(endpointPricing).
		Set(querycache.ParamViewer, catalog.ViewerFingerprint(catalog.BearerFromContext(ctx))).
		String()
	return s.cached(ctx, endpointPricing, key, func(ctx context.Context) ([]catalog.Product, error) {
		return s.backend.ListProducts(ctx, backend.PathProductsPricing, q.Values())
	})
}

// GetProduct returns a single product by id.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*catalog.Product, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, fmt.Errorf("%w: product id is required", catalog.ErrBadRequest)
	}
	key := querycache.NewKey(endpointProduct).Set(querycache.ParamProduct, id).String()
	res, err := s.cached(ctx, endpointProduct, key, func(ctx context.Context) ([]catalog.Product, error) {
		p, err := s.backend.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		return []catalog.Product{*p}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(res.Products) == 0 {
		return nil, false, catalog.ErrNotFound
	}
	return &res.Products[0], res.Cached, nil
}

// Checkout forwards order to the backend. On success every ordered product
// is invalidated, scoped to the order's store, so stock and discount changes
// are visible on the next read.
func (s *CatalogService) Checkout(ctx context.Context, order []byte) (*CheckoutResult, error) {
	if !gjson.ValidBytes(order) || !gjson.ParseBytes(order).IsObject() {
		return nil, fmt.Errorf("%w: order must be a JSON object", catalog.ErrBadRequest)
	}
	resp, err := s.backend.Checkout(ctx, order)
	if err != nil {
		return nil, err
	}

	removed := 0
	for _, item := range orderItems(order) {
		removed += s.InvalidateProduct(item.productID, querycache.ProductScope{StoreID: item.storeID})
	}
	if removed > 0 {
		slog.LogAttrs(ctx, slog.LevelDebug, "checkout invalidated cache",
			slog.String("request_id", catalog.RequestIDFromContext(ctx)),
			slog.Int("removed", removed),
		)
	}
	return &CheckoutResult{Response: resp, Invalidated: removed}, nil
}

type orderItem struct {
	productID string
	storeID   string
}

// orderItems reads items[].product_id and items[].store_id, falling back to
// a top-level store_id.
func orderItems(order []byte) []orderItem {
	doc := gjson.ParseBytes(order)
	defaultStore := doc.Get("store_id").String()
	var items []orderItem
	doc.Get("items").ForEach(func(_, item gjson.Result) bool {
		id := item.Get("product_id").String()
		if id == "" {
			return true
		}
		store := item.Get("store_id").String()
		if store == "" {
			store = defaultStore
		}
		items = append(items, orderItem{productID: id, storeID: store})
		return true
	})
	return items
}

// InvalidateAll clears the cache.
func (s *CatalogService) InvalidateAll() int {
	if s.cache == nil {
		return 0
	}
	return s.countInvalidations("all", s.cache.InvalidateAll())
}

// InvalidateCategory removes entries that may list products of category id.
func (s *CatalogService) InvalidateCategory(id string) int {
	if s.cache == nil {
		return 0
	}
	return s.countInvalidations("category", s.cache.InvalidateCategory(id))
}

// InvalidateStore removes entries that may depend on store id.
func (s *CatalogService) InvalidateStore(id string) int {
	if s.cache == nil {
		return 0
	}
	return s.countInvalidations("store", s.cache.InvalidateStore(id))
}

// InvalidateProduct removes entries that may contain product id.
func (s *CatalogService) InvalidateProduct(id string, scope querycache.ProductScope) int {
	if s.cache == nil {
		return 0
	}
	return s.countInvalidations("product", s.cache.InvalidateProduct(id, scope))
}

// Stats returns the cache debug view. A disabled cache reports no entries.
func (s *CatalogService) Stats() querycache.Stats {
	if s.cache == nil {
		return querycache.Stats{Keys: []string{}}
	}
	return s.cache.Stats()
}

// cached serves key from the cache or calls fetch and stores its result.
func (s *CatalogService) cached(ctx context.Context, endpoint, key string, fetch func(context.Context) ([]catalog.Product, error)) (*Result, error) {
	if s.cache != nil {
		if products, ok := s.cache.Get(key); ok {
			if s.metrics != nil {
				s.metrics.CacheHits.WithLabelValues(endpoint).Inc()
			}
			return &Result{Products: products, Cached: true}, nil
		}
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.WithLabelValues(endpoint).Inc()
	}

	products, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	// A caller that gave up does not get to populate the cache.
	if s.cache != nil && ctx.Err() == nil {
		s.cache.Set(key, products)
	}
	return &Result{Products: products}, nil
}

func (s *CatalogService) countInvalidations(scope string, n int) int {
	if s.metrics != nil && n > 0 {
		s.metrics.Invalidations.WithLabelValues(scope).Add(float64(n))
	}
	return n
}
