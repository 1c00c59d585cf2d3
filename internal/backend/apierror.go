package backend

import (
	"fmt"
	"io"
	"net/http"

	catalog "github.com/eugener/celeste/internal"
)

const maxErrorBody = 4096

// APIError is a non-2xx response from the catalog backend.
type APIError struct {
	StatusCode int
	Body       string
}

// Error returns the status and the (truncated) response body.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Is maps upstream statuses onto catalog sentinels so callers can use
// errors.Is without knowing about APIError.
func (e *APIError) Is(target error) bool {
	switch target {
	case catalog.ErrBackend:
		return true
	case catalog.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case catalog.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case catalog.ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// parseAPIError reads up to 4KB from the response body and returns an APIError.
func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}
