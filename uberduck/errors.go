package uberduck

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// StatusError is a non-2xx API answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("uberduck: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// ErrorClass represents whether an error should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the poll should be retried (transient errors).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates retrying cannot help.
	ErrorClassFatal
	// ErrorClassUnknown is returned for a nil error.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts API and transport errors into retryable vs fatal.
//
// Fatal: bad credentials (401, 403), unknown job or voice (404, 422), a
// malformed request (400).
// Retryable: server errors (5xx), rate limiting (429), network failures.
// Anything else is treated as retryable to avoid giving up too early.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests, se.Code >= 500:
			return ErrorClassRetryable
		case se.Code == http.StatusUnauthorized,
			se.Code == http.StatusForbidden,
			se.Code == http.StatusNotFound,
			se.Code == http.StatusBadRequest,
			se.Code == http.StatusUnprocessableEntity:
			return ErrorClassFatal
		}
		return ErrorClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"unsupported protocol scheme", "invalid url", "missing host"} {
		if strings.Contains(lower, pattern) {
			return ErrorClassFatal
		}
	}
	return ErrorClassRetryable
}

// IsFatalError checks if an error should not be retried.
func IsFatalError(err error) bool {
	return Classify(err) == ErrorClassFatal
}
