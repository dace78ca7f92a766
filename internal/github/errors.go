package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrNotFound is returned when the requested resource does not exist
	// or the token cannot see it. GitHub reports both as 404.
	ErrNotFound = errors.New("github: resource not found")

	// ErrRemoteUnavailable is returned when GitHub could not be reached
	// or answered with a server error after retries.
	ErrRemoteUnavailable = errors.New("github: remote unavailable")
)

// AuthError is returned when the token is missing, expired, or lacks the
// scopes required for the request.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("github: authentication failed (status %d)", e.StatusCode)
}

// RateLimitError is returned when the rate limit budget stayed exhausted
// for longer than the retry window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("github: rate limited, retry after %s", e.RetryAfter)
	}
	return "github: rate limited"
}

// APIError is any other non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error: %s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps server-side failures onto ErrRemoteUnavailable so callers
// can fail fast on outages without inspecting status codes.
func (e *APIError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError {
		return ErrRemoteUnavailable
	}
	return nil
}
