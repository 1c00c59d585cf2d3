package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	catalog "github.com/eugener/celeste/internal"
	"github.com/eugener/celeste/internal/backend"
)

// Error type strings returned in the error envelope.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuthentication = "authentication_error"
	errTypeNotFound       = "not_found_error"
	errTypeRateLimit      = "rate_limit_error"
	errTypeBackend        = "backend_error"
	errTypeUnavailable    = "backend_unavailable_error"
	errTypeInternal       = "internal_error"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg, typ string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = typ
	return e
}

// errorStatus maps an error to its HTTP status. Client errors reported by
// the backend keep their status so callers can react to them.
func errorStatus(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	switch {
	case errors.Is(err, catalog.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, catalog.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, catalog.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return errTypeInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return errTypeAuthentication
	case http.StatusNotFound:
		return errTypeNotFound
	case http.StatusTooManyRequests:
		return errTypeRateLimit
	case http.StatusBadGateway:
		return errTypeBackend
	case http.StatusServiceUnavailable:
		return errTypeUnavailable
	}
	if status >= 400 && status < 500 {
		return errTypeInvalidRequest
	}
	return errTypeInternal
}

// writeError writes the error envelope. Validation errors are echoed;
// backend and internal failures are logged in full and returned as a
// generic message so upstream details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := strings.ToLower(http.StatusText(status))

	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		// Upstream body stays server-side.
	case status == http.StatusBadRequest:
		msg = err.Error()
	case status == http.StatusServiceUnavailable:
		msg = "backend unavailable, retry later"
	}
	if status >= 500 {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("request_id", catalog.RequestIDFromContext(r.Context())),
		)
	}
	writeJSON(w, status, errorResponse(msg, errorType(status)))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// avoids the []string{v} alloc that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
