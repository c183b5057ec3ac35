package coach

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConnected is returned by Channel.Send when the channel is not
// open. During a reconnect window this is expected; callers drop the
// event and may retry after the channel reopens.
var ErrNotConnected = errors.New("coach: channel not connected")

// Error is a structured error from the session API.
type Error struct {
	// StatusCode is the HTTP status of the failed request.
	StatusCode int

	// Code is the machine-readable error code, when the server sent one.
	Code string

	// Message is the human-readable description.
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("coach: %s (code=%s, status=%d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("coach: %s (status=%d)", e.Message, e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *Error) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether the error is a missing-session error.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsError unwraps err as a *Error if possible.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
