package catalog

import "errors"

// Sentinel errors for the catalog domain.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrBadRequest         = errors.New("bad request")
	ErrRateLimited        = errors.New("rate limited")
	ErrBackend            = errors.New("backend error")
	ErrBackendUnavailable = errors.New("backend unavailable")
)
