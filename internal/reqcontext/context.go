// Package reqcontext carries per-request identifiers through context.Context.
package reqcontext

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
	sourceKey    contextKey = "request_source"
)

// Source names the surface a request entered through.
type Source string

const (
	SourceMCP     Source = "mcp"
	SourceOAuth   Source = "oauth"
	SourceAPI     Source = "api"
	SourceDevice  Source = "device"
	SourceUnknown Source = "unknown"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithSessionID binds an MCP session id to ctx. Tool handlers read it back
// through SessionID to look up the caller's credentials.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID returns the session id bound to ctx and whether one was present.
// An empty id counts as absent.
func SessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

func WithSource(ctx context.Context, s Source) context.Context {
	return context.WithValue(ctx, sourceKey, s)
}

func GetSource(ctx context.Context) Source {
	if ctx == nil {
		return SourceUnknown
	}
	if s, ok := ctx.Value(sourceKey).(Source); ok {
		return s
	}
	return SourceUnknown
}

// LogFields returns the identifiers present in ctx as zap-style key/value
// pairs, ready to pass to a SugaredLogger's *w methods.
func LogFields(ctx context.Context) []interface{} {
	var fields []interface{}
	if id := RequestID(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}
	if id, ok := SessionID(ctx); ok {
		fields = append(fields, "session_id", id)
	}
	if s := GetSource(ctx); s != SourceUnknown {
		fields = append(fields, "source", string(s))
	}
	return fields
}
