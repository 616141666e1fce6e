package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	ServerName = "devbridge"

	instructions = "Tools for GitHub and ClickUp. Each session logs in to the providers it needs; " +
		"tools answer with an authentication_pending status until the session is connected."
)

// NewMCPServer builds the single MCP server shared by every session. Tools
// are registered on it by the caller.
func NewMCPServer(version string, logger *zap.Logger) *mcpserver.MCPServer {
	logger = logger.Named("mcp")

	hooks := &mcpserver.Hooks{}
	hooks.AddOnRegisterSession(func(_ context.Context, sess mcpserver.ClientSession) {
		logger.Debug("MCP session registered", zap.String("session_id", sess.SessionID()))
	})
	hooks.AddOnUnregisterSession(func(_ context.Context, sess mcpserver.ClientSession) {
		logger.Debug("MCP session unregistered", zap.String("session_id", sess.SessionID()))
	})
	hooks.AddAfterInitialize(func(ctx context.Context, _ any, req *mcp.InitializeRequest, _ *mcp.InitializeResult) {
		var sessionID string
		if sess := mcpserver.ClientSessionFromContext(ctx); sess != nil {
			sessionID = sess.SessionID()
		}
		logger.Info("MCP client initialized",
			zap.String("session_id", sessionID),
			zap.String("client_name", req.Params.ClientInfo.Name),
			zap.String("client_version", req.Params.ClientInfo.Version),
			zap.String("protocol_version", req.Params.ProtocolVersion),
		)
	})
	hooks.AddOnError(func(_ context.Context, id any, method mcp.MCPMethod, _ any, err error) {
		logger.Warn("MCP request failed",
			zap.Any("id", id),
			zap.String("method", string(method)),
			zap.Error(err),
		)
	})

	return mcpserver.NewMCPServer(
		ServerName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(hooks),
		mcpserver.WithInstructions(instructions),
	)
}
