package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRetryExhausted is returned when all retry attempts are used up, for
// both the bad-status and the transport-failure path. It wraps the last
// observed failure.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// APIError represents a non-2xx HTTP response from the remote API.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d) on %s: %s", e.StatusCode, e.Endpoint, e.Status)
}

// retryableStatus reports whether a status code marks a transient remote
// error worth retrying. Any other non-2xx status fails immediately.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
