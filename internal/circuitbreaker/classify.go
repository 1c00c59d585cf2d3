package circuitbreaker

import (
	"context"
	"errors"
	"os"
)

// httpStatusError is satisfied by backend.APIError.
type httpStatusError interface {
	HTTPStatus() int
}

// ClassifyError returns the error weight for breaker tracking.
//
// Weights:
//   - nil, context.Canceled, 4xx except 429 -> 0.0
//   - 429 -> 0.5
//   - 5xx, network and other errors -> 1.0
//   - timeouts -> 1.5
func ClassifyError(err error) float64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return 1.5
	case errors.Is(err, context.Canceled):
		// The caller went away; says nothing about backend health.
		return 0
	}

	var he httpStatusError
	if errors.As(err, &he) {
		return classifyStatus(he.HTTPStatus())
	}
	return 1.0
}

func classifyStatus(code int) float64 {
	switch {
	case code == 429:
		return 0.5
	case code >= 500:
		return 1.0
	default:
		return 0
	}
}
