package api

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized matches any 401 response; the caller is expected to
	// clear its session and return to the sign-in view.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransport wraps failures that happened before a response arrived.
	ErrTransport = errors.New("transport failure")
)

// APIError is a non-2xx backend response. Message carries the body's
// "message" field when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Message returns the text worth showing to a user for err: the backend
// message for API errors, or fallback for anything else.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if fallback != "" {
		return fallback
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
