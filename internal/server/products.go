package server

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/app"
)

const (
	cacheHeader = "X-Cache"

	// maxCheckoutBody is the maximum allowed checkout body size (1 MB).
	maxCheckoutBody = 1 << 20
)

var (
	cacheHit  = []string{"HIT"}
	cacheMiss = []string{"MISS"}
)

type listResponse struct {
	Data   []catalog.Product `json:"data"`
	Cached bool              `json:"cached"`
}

type productResponse struct {
	Data   *catalog.Product `json:"data"`
	Cached bool             `json:"cached"`
}

func setCacheHeader(w http.ResponseWriter, cached bool) {
	if cached {
		w.Header()[cacheHeader] = cacheHit
	} else {
		w.Header()[cacheHeader] = cacheMiss
	}
}

func (s *server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseProductQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Catalog.GetProducts(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheHeader(w, res.Cached)
	writeJSON(w, http.StatusOK, listResponse{Data: res.Products, Cached: res.Cached})
}

func (s *server) handleListProductsWithPricing(w http.ResponseWriter, r *http.Request) {
	q, err := parseProductQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Catalog.GetProductsWithPricing(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheHeader(w, res.Cached)
	writeJSON(w, http.StatusOK, listResponse{Data: res.Products, Cached: res.Cached})
}

func (s *server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, cached, err := s.deps.Catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheHeader(w, cached)
	writeJSON(w, http.StatusOK, productResponse{Data: p, Cached: cached})
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCheckoutBody))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: request body too large or unreadable", catalog.ErrBadRequest))
		return
	}
	res, err := s.deps.Catalog.Checkout(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.Header().Set("X-Cache-Invalidated", strconv.Itoa(res.Invalidated))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Response)
}

// parseProductQuery reads listing filters from the query string.
// store_ids accepts a comma list, repeated parameters, or both.
func parseProductQuery(v url.Values) (app.ProductQuery, error) {
	var q app.ProductQuery
	q.CategoryID = strings.TrimSpace(v.Get("category_id"))

	var err error
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return q, err
	}
	if raw := v.Get("discounted"); raw != "" {
		if q.DiscountedOnly, err = strconv.ParseBool(raw); err != nil {
			return q, fmt.Errorf("%w: discounted must be a boolean", catalog.ErrBadRequest)
		}
	}
	for _, raw := range v["store_ids"] {
		for id := range strings.SplitSeq(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				q.StoreIDs = append(q.StoreIDs, id)
			}
		}
	}
	if q.Lat, err = floatParam(v, "lat"); err != nil {
		return q, err
	}
	if q.Lng, err = floatParam(v, "lng"); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", catalog.ErrBadRequest, name)
	}
	return n, nil
}

func floatParam(v url.Values, name string) (*float64, error) {
	raw := v.Get(name)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", catalog.ErrBadRequest, name)
	}
	return &f, nil
}
