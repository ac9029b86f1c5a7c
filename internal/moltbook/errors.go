package moltbook

import (
	"errors"
	"fmt"
)

// ErrAuthRequired marks a 401 response. It is surfaced instead of retried
// so callers using the public-endpoint-first strategy can repeat the call
// once with credentials attached.
var ErrAuthRequired = errors.New("authentication required")

// APIError describes a non-success HTTP response from the Moltbook API
// after any retries have been exhausted.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moltbook: %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
