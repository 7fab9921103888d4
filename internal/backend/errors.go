package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a response the backend rejected, either with a non-2xx status
// or with "ok": false in the envelope.
type APIError struct {
	Status  int
	Message string
	Code    string
	// Fields holds per-field validation messages when the backend sent them.
	Fields map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// IsServerFault reports whether err means the backend is unavailable or
// broken: a transport error or a 5xx response. Context cancellation is
// neither a server nor a client fault.
func IsServerFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

// IsClientFault reports whether the backend rejected the request itself.
func IsClientFault(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError
}

// IsNotFound reports a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Message returns the text to show for err: the backend's message for API
// errors, fallback otherwise.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
