package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op      string // client operation, e.g. "list posts"
	Status  int
	Message string // the "error" field of the body, if any
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

func statusIs(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return statusIs(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return statusIs(err, http.StatusUnauthorized)
}

// IsForbidden reports whether err is a 403 from the backend.
func IsForbidden(err error) bool {
	return statusIs(err, http.StatusForbidden)
}

// IsServerError reports whether err is a 5xx from the backend.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError
}
