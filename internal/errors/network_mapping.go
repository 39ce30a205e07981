package errors

import (
	"net/http"
	"strings"
)

// MapNetworkError classifies a transport-level error into the client-facing
// envelope. Used by the proxy engine's transport-exception retry branch.
func MapNetworkError(err error) *APIError {
	if err == nil {
		return New(http.StatusBadGateway, "network_error", "network error")
	}
	msg := err.Error()

	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return New(http.StatusGatewayTimeout, "timeout_error", "upstream request timed out: "+msg)
	case strings.Contains(msg, "connection refused"):
		return New(http.StatusBadGateway, "connection_error", "upstream connection refused: "+msg)
	case strings.Contains(msg, "EOF") || strings.Contains(msg, "connection reset"):
		return New(http.StatusBadGateway, "connection_error", "upstream connection error: "+msg)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "name resolution"):
		return New(http.StatusBadGateway, "dns_error", "upstream DNS resolution failed: "+msg)
	case strings.Contains(msg, "context canceled"):
		return New(http.StatusRequestTimeout, "request_canceled", "request canceled: "+msg)
	default:
		return New(http.StatusBadGateway, "network_error", "network error: "+msg)
	}
}

// IsRetryableNetworkError reports whether a transport error should drive a
// retry attempt rather than an immediate failure. Client-initiated
// cancellation is never retried.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return !strings.Contains(err.Error(), "context canceled")
}
