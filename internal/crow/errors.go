package crow

import (
	"errors"
	"fmt"
)

// Sentinel errors for Crow Cloud operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthentication is returned when credentials are rejected or a
	// token refresh fails. It is never retried.
	ErrAuthentication = errors.New("crow: authentication failed")

	// ErrConnection is returned when the API is unreachable or answers
	// with a server error, after the retry budget is exhausted.
	ErrConnection = errors.New("crow: connection failed")

	// ErrResponse is returned for unexpected non-2xx responses that
	// have no more specific classification. Not retried.
	ErrResponse = errors.New("crow: unexpected API response")

	// ErrPanelNotFound is returned when a panel-scoped request answers
	// 404. Not retried.
	ErrPanelNotFound = errors.New("crow: panel not found")

	// ErrRateLimit is returned when the API keeps answering 429 after
	// the retry budget is exhausted.
	ErrRateLimit = errors.New("crow: rate limit exceeded")

	// ErrTimeout is returned when a request exceeds the configured
	// timeout, after the retry budget is exhausted.
	ErrTimeout = errors.New("crow: request timed out")

	// ErrClosed is returned when operating on a closed session or
	// realtime channel.
	ErrClosed = errors.New("crow: session closed")

	// ErrInvalidMAC is returned when a panel MAC address cannot be
	// normalised to 12 hexadecimal characters.
	ErrInvalidMAC = errors.New("crow: invalid MAC address")
)

// StatusError carries the HTTP status and a body snippet for
// unexpected API responses. It unwraps to ErrResponse.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crow: unexpected API response: status %d", e.Status)
	}
	return fmt.Sprintf("crow: unexpected API response: status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrResponse
}

// rateLimitError is the internal recoverable form of a 429 response.
// RetryAfter is zero when the server supplied no usable hint.
type rateLimitError struct {
	RetryAfter int // seconds
}

func (e *rateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("crow: rate limit exceeded, retry after %ds", e.RetryAfter)
	}
	return "crow: rate limit exceeded"
}

func (e *rateLimitError) Unwrap() error {
	return ErrRateLimit
}

// errAuthRequired marks a 401/403 on an authenticated request. The
// executor consumes it at most once per call by refreshing the token;
// a second occurrence becomes ErrAuthentication.
var errAuthRequired = errors.New("crow: token rejected")
