package clickup

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed ClickUp call.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindServerError  ErrorKind = "server_error"
	KindNetwork      ErrorKind = "network_error"
	KindBadRequest   ErrorKind = "bad_request"
)

// APIError is returned for every non-2xx response and for connection-level failures.
// StatusCode is zero for KindNetwork.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	ErrCode    string
	Endpoint   string
	Err        error
}

func (e *APIError) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("clickup: %s: network error: %v", e.Endpoint, e.Err)
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.ErrCode != "" {
		return fmt.Sprintf("clickup: %s: HTTP %d (%s): %s", e.Endpoint, e.StatusCode, e.ErrCode, msg)
	}
	return fmt.Sprintf("clickup: %s: HTTP %d: %s", e.Endpoint, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify maps a response status and remote message onto an ErrorKind.
// ClickUp reports some missing tasks with a non-404 status, so the message is checked first.
func classify(status int, message string) ErrorKind {
	switch {
	case status == http.StatusNotFound || isNotFoundMessage(message):
		return KindNotFound
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindBadRequest
	}
}

func isNotFoundMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")
}

// KindOf returns the classification of err, or an empty kind when err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsNotFound reports whether err means the remote resource does not exist.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnauthorized reports whether the credential was rejected.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsRateLimited reports whether ClickUp throttled the request.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsServerError reports a 5xx response.
func IsServerError(err error) bool {
	return KindOf(err) == KindServerError
}

// IsNetworkError reports a connection-level failure.
func IsNetworkError(err error) bool {
	return KindOf(err) == KindNetwork
}
