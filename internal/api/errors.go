package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork marks transport-level failures (connection refused,
	// timeouts, malformed responses).
	ErrNetwork = errors.New("network error")
	// ErrDecode marks a well-formed response missing a required field.
	ErrDecode = errors.New("decode error")
	// ErrNotFound distinguishes "target does not exist" from generic
	// failure, notably for friend requests.
	ErrNotFound = errors.New("not found")
	ErrAuthExpired = errors.New("authentication expired")
	ErrAuthDenied  = errors.New("authentication denied")
)

// Error is a well-formed error response from the service.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAuthExpired:
		return e.StatusCode == http.StatusUnauthorized
	case ErrAuthDenied:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// StatusOf extracts the HTTP status of an API error, or 0 if err is
// not one.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
