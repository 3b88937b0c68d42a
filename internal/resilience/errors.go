package resilience

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ProxyFailure is the error message the CRM proxy answers with when it could
// not reach the CRM at all.
const ProxyFailure = "Proxy error"

// rateLimitCategory marks a CRM error body that asks the caller to slow down,
// whatever status code carries it.
const rateLimitCategory = "RATE_LIMITS"

// TransientError marks a failed CRM page fetch as worth retrying.
// StatusCode is zero when no response arrived.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err is retryable: an explicit TransientError,
// a network timeout, a dropped connection, or a body cut off mid-page.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}

// IsTransientHTTPStatus reports whether a status alone is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsTransientResponse reports whether a non-2xx answer from the proxy is
// worth retrying. Besides the status, it reads the body for the proxy's own
// transport failure and for CRM rate limit errors sent with a 4xx code.
func IsTransientResponse(statusCode int, body []byte) bool {
	if IsTransientHTTPStatus(statusCode) {
		return true
	}

	var e struct {
		Error    string `json:"error"`
		Category string `json:"category"`
	}
	if json.Unmarshal(body, &e) != nil {
		return false
	}
	return e.Error == ProxyFailure || e.Category == rateLimitCategory
}
