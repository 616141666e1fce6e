// Package upstream contains the REST clients for the GitHub and ClickUp APIs
// used by the tools.
package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream matches every *Error.
	ErrUpstream = errors.New("upstream request failed")

	// ErrUpstreamTimeout means the provider did not answer within the
	// configured timeout. Callers may retry.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// Error is a non-2xx response from a provider API. Body is truncated and may
// contain tokens; redact it before logging.
type Error struct {
	Provider string
	Method   string
	Path     string
	Status   int
	Body     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s %s: status %d", e.Provider, e.Method, e.Path, e.Status)
}

func (e *Error) Unwrap() error { return ErrUpstream }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}
