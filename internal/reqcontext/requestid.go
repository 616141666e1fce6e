package reqcontext

import (
	"regexp"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader is echoed on every HTTP response.
	RequestIDHeader = "X-Request-Id"

	MaxRequestIDLength = 128
)

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidRequestID accepts 1..MaxRequestIDLength characters of [A-Za-z0-9_-].
func IsValidRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	return requestIDPattern.MatchString(id)
}

// NewSessionID returns a fresh opaque MCP session id.
func NewSessionID() string {
	return uuid.NewString()
}

// GetOrGenerateRequestID keeps a client supplied id when it is well formed.
func GetOrGenerateRequestID(provided string) string {
	if IsValidRequestID(provided) {
		return provided
	}
	return uuid.NewString()
}
