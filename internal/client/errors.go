package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/bulles-portal/internal/auth"
)

// ErrRateLimited is returned on 429 responses.
var ErrRateLimited = errors.New("client: rate limited")

// APIError is a non-2xx response from the portal.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`

	sentinel error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal returned %d", e.Status)
	}
	return fmt.Sprintf("portal returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap returns the matching package sentinel, if any.
func (e *APIError) Unwrap() error {
	return e.sentinel
}

// sentinelFor maps a status and error code to a sentinel. notFound is the
// sentinel for a 404 on the endpoint being called.
func sentinelFor(status int, code string, notFound error) error {
	switch {
	case code == "missing_credentials":
		return auth.ErrMissingCredentials
	case code == "invalid_credentials":
		return auth.ErrInvalidCredentials
	case code == "missing_token":
		return auth.ErrMissingToken
	case code == "invalid_token":
		return auth.ErrTokenInvalid
	case code == "forbidden":
		return auth.ErrForbidden
	case status == http.StatusNotFound:
		return notFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}
