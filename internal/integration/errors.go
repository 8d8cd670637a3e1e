// Package integration holds what the outbound adapters (calendar, mail,
// WhatsApp, PDF, archive) have in common.
package integration

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotConfigured is returned by an adapter whose credentials are absent.
var ErrNotConfigured = errors.New("integration not configured")

// DefaultTimeout bounds every outbound adapter call.
const DefaultTimeout = 15 * time.Second

// UpstreamError is a failure reported by a managed service. Message is the
// provider's own text, passed through to the caller.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Provider, e.Status, e.Message)
}

// NotConfigured wraps ErrNotConfigured with the missing setting names.
func NotConfigured(provider string, settings ...string) error {
	return fmt.Errorf("%w: %s requires %v", ErrNotConfigured, provider, settings)
}

// HTTPClient returns the client adapters share when none is injected.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}
