// Package gate checks a session's credentials before a tool body runs.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/reqcontext"
)

// Requirement names the providers a tool needs.
type Requirement int

const (
	None Requirement = iota
	GitHub
	ClickUp
	Both
)

func (r Requirement) String() string {
	switch r {
	case None:
		return "none"
	case GitHub:
		return "github"
	case ClickUp:
		return "clickup"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

func (r Requirement) needsGitHub() bool  { return r == GitHub || r == Both }
func (r Requirement) needsClickUp() bool { return r == ClickUp || r == Both }

// Display names, in the order they are reported.
const (
	ProviderGitHub  = "GitHub"
	ProviderClickUp = "ClickUp"
)

// StatusAuthenticationPending is the structured status of a denied call.
const StatusAuthenticationPending = "authentication_pending"

// ErrSessionNotResolved means a tool was invoked without a session id in
// its context, which only a wiring bug can cause.
var ErrSessionNotResolved = errors.New("session not resolved")

// Handler is a tool body. It receives the bundle the gate checked.
type Handler func(ctx context.Context, req mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error)

// Pending is the structured content of an authentication-pending answer.
type Pending struct {
	Status  string            `json:"status"`
	Missing []string          `json:"missing"`
	Login   map[string]string `json:"login"`
}

type Gate struct {
	store   *credentials.Store
	logger  *zap.Logger
	metrics *observability.MetricsManager
	tracing *observability.TracingManager
	login   map[string]string
}

// New builds a gate. login maps provider display names to where the user
// starts that provider's login.
func New(store *credentials.Store, logger *zap.Logger, metrics *observability.MetricsManager, tracing *observability.TracingManager, login map[string]string) *Gate {
	return &Gate{
		store:   store,
		logger:  logger.Named("gate"),
		metrics: metrics,
		tracing: tracing,
		login:   login,
	}
}

// Missing lists the providers req needs that b lacks, GitHub first.
// ClickUp counts as present once a token exists; workspace selection is
// checked by the tools that need a workspace.
func Missing(req Requirement, b credentials.Bundle) []string {
	var missing []string
	if req.needsGitHub() {
		switch b.GitHubStatus() {
		case credentials.Unauthenticated:
			missing = append(missing, ProviderGitHub)
		case credentials.PartiallyAuthenticated, credentials.Ready:
		}
	}
	if req.needsClickUp() {
		switch b.ClickUpStatus() {
		case credentials.Unauthenticated:
			missing = append(missing, ProviderClickUp)
		case credentials.PartiallyAuthenticated, credentials.Ready:
		}
	}
	return missing
}

// SessionID resolves the calling session from ctx. The router binds it via
// reqcontext; the MCP client session is the fallback.
func SessionID(ctx context.Context) (string, bool) {
	if id, ok := reqcontext.SessionID(ctx); ok {
		return id, true
	}
	if cs := server.ClientSessionFromContext(ctx); cs != nil && cs.SessionID() != "" {
		return cs.SessionID(), true
	}
	return "", false
}

// Wrap returns an MCP tool handler that runs h only when the calling
// session satisfies req.
func (g *Gate) Wrap(req Requirement, h Handler) server.ToolHandlerFunc {
	return func(ctx context.Context, call mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tool := call.Params.Name

		sid, ok := SessionID(ctx)
		if !ok {
			g.logger.Error("Tool invoked without a session", zap.String("tool", tool), zap.Error(ErrSessionNotResolved))
			g.metrics.RecordToolCall(tool, observability.StatusError)
			return mcp.NewToolResultError("internal error: " + ErrSessionNotResolved.Error()), nil
		}

		creds, err := g.store.Session(ctx, sid)
		if err != nil {
			g.logger.Error("Failed to read session credentials", zap.String("tool", tool), zap.String("session_id", sid), zap.Error(err))
			g.metrics.RecordToolCall(tool, observability.StatusError)
			return mcp.NewToolResultError("internal error: credentials unavailable"), nil
		}

		if missing := Missing(req, creds); len(missing) > 0 {
			g.metrics.RecordGateDenial(req.String())
			g.logger.Debug("Tool call awaiting authentication",
				zap.String("tool", tool), zap.String("session_id", sid), zap.Strings("missing", missing))
			return g.pendingResult(missing), nil
		}

		ctx, span := g.tracing.TraceToolCall(ctx, tool, sid)
		result, err := h(ctx, call, creds)
		observability.EndSpan(span, err)
		if err != nil {
			g.logger.Error("Tool failed", zap.String("tool", tool), zap.String("session_id", sid), zap.Error(err))
			g.metrics.RecordToolCall(tool, observability.StatusError)
			return mcp.NewToolResultError("internal error"), nil
		}
		status := observability.StatusSuccess
		if result != nil && result.IsError {
			status = observability.StatusError
		}
		g.metrics.RecordToolCall(tool, status)
		return result, nil
	}
}

// pendingResult is a normal (non-error) result naming what to log in to.
func (g *Gate) pendingResult(missing []string) *mcp.CallToolResult {
	p := Pending{
		Status:  StatusAuthenticationPending,
		Missing: missing,
		Login:   make(map[string]string, len(missing)),
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Authentication pending for: %s.", strings.Join(missing, ", "))
	for _, name := range missing {
		if hint, ok := g.login[name]; ok {
			p.Login[name] = hint
			fmt.Fprintf(&b, "\n%s login: %s", name, hint)
		}
	}
	return mcp.NewToolResultStructured(p, b.String())
}
