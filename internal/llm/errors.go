package llm

import (
	"fmt"
	"net/http"
)

// APIError is a provider API failure carrying enough detail to decide
// whether a retry can help. A StatusCode of 0 means the request never got
// an HTTP response.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	// Type and Code carry the provider's own error classification when the
	// response body included one.
	Type string
	Code string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
}

// IsTransient reports whether the same request may succeed on retry.
// Rate limiting, server errors, and transport failures are transient;
// every 4xx other than 429 is not.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}
