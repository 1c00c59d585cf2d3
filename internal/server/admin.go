package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/celeste/internal/querycache"
)

type removedResponse struct {
	Removed int `json:"removed"`
}

func (s *server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.Stats())
}

func (s *server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, removedResponse{Removed: s.deps.Catalog.InvalidateAll()})
}

func (s *server) handleInvalidateCategory(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Catalog.InvalidateCategory(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

func (s *server) handleInvalidateStore(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Catalog.InvalidateStore(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}

// handleInvalidateProduct accepts optional category_id and store_id query
// parameters that widen the invalidation.
func (s *server) handleInvalidateProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := s.deps.Catalog.InvalidateProduct(chi.URLParam(r, "id"), querycache.ProductScope{
		CategoryID: q.Get("category_id"),
		StoreID:    q.Get("store_id"),
	})
	writeJSON(w, http.StatusOK, removedResponse{Removed: n})
}
