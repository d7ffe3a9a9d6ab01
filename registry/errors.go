package registry

import (
	"errors"
	"fmt"
)

// ErrThrottled is returned when the registry keeps answering 429 after
// the bounded retry budget is exhausted. Throttling below that budget is
// absorbed silently as delay.
var ErrThrottled = errors.New("registry rate limit retries exhausted")

// RequestRejectedError is a non-retryable 4xx response (other than 429).
// Body carries the server's error payload, typically problem+json.
type RequestRejectedError struct {
	StatusCode int
	Body       string
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("registry rejected request: %d: %s", e.StatusCode, e.Body)
}

// ServerError is a 5xx response that persisted through the retry budget.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("registry server error: %d: %s", e.StatusCode, e.Body)
}

// TransportError is a network-level failure (connection reset, timeout)
// that persisted through the single transport retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registry unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
