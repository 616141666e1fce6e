// Package tools defines the MCP tools exposed to clients. Every tool is
// stateless and reads the caller's credentials through the gate.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/gate"
	"devbridge-go/internal/oauth"
	"devbridge-go/internal/upstream"
)

// Tool names. They are part of the wire contract with existing clients.
const (
	ToolListWorkspaces   = "clickup_listar_workspaces"
	ToolSelectWorkspace  = "clickup_selecionar_workspace"
	ToolListLists        = "clickup_listar_listas"
	ToolMyRepos          = "github_meus_repositorios"
	ToolCreateRepo       = "github_criar_repositorio"
	ToolSyncIssue        = "sincronizar_issue_para_clickup"
	ToolWeeklyReport     = "relatorio_semanal"
	ToolAuthStatus       = "auth_status"
	ToolGitHubLogin      = "github_login"
	ToolGitHubLoginCheck = "github_login_status"
)

const recentRepoLimit = 10

// Deps are the collaborators shared by all tools. Device is nil unless the
// GitHub device flow is enabled.
type Deps struct {
	Store   *credentials.Store
	Gate    *gate.Gate
	GitHub  *upstream.GitHubClient
	ClickUp *upstream.ClickUpClient
	Device  *oauth.DeviceFlow
	Logger  *zap.Logger
}

type Toolset struct {
	store   *credentials.Store
	gate    *gate.Gate
	github  *upstream.GitHubClient
	clickup *upstream.ClickUpClient
	device  *oauth.DeviceFlow
	logger  *zap.Logger
	now     func() time.Time
}

func New(d Deps) *Toolset {
	return &Toolset{
		store:   d.Store,
		gate:    d.Gate,
		github:  d.GitHub,
		clickup: d.ClickUp,
		device:  d.Device,
		logger:  d.Logger.Named("tools"),
		now:     time.Now,
	}
}

// Register adds every tool to s.
func (t *Toolset) Register(s *server.MCPServer) {
	t.registerClickUp(s)
	t.registerGitHub(s)
	t.registerIntegrations(s)
	t.registerAuth(s)
}

// failure converts a tool body error into a result the client can show.
// Upstream details stay in the log.
func (t *Toolset) failure(tool string, err error) *mcp.CallToolResult {
	var ue *upstream.Error
	switch {
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		t.logger.Warn("Upstream timeout", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError("The provider did not answer in time, try again.")
	case errors.As(err, &ue):
		t.logger.Warn("Upstream rejected request",
			zap.String("tool", tool),
			zap.String("provider", ue.Provider),
			zap.String("path", ue.Path),
			zap.Int("status", ue.Status),
			zap.String("body", oauth.RedactSensitiveData(ue.Body)))
		return mcp.NewToolResultError(fmt.Sprintf("%s request failed (status %d).", providerDisplay(ue.Provider), ue.Status))
	case errors.Is(err, context.Canceled):
		return mcp.NewToolResultError("Request cancelled.")
	default:
		t.logger.Error("Tool failed", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError("An unexpected error occurred.")
	}
}

func providerDisplay(p string) string {
	switch p {
	case upstream.ProviderGitHub:
		return "GitHub"
	case upstream.ProviderClickUp:
		return "ClickUp"
	default:
		return p
	}
}

// selectedWorkspace returns the ClickUp workspace id, or a result telling
// the user to pick one first.
func selectedWorkspace(creds credentials.Bundle) (string, *mcp.CallToolResult) {
	switch creds.ClickUpStatus() {
	case credentials.Ready:
		return creds.ClickUp.SelectedWorkspaceID, nil
	case credentials.PartiallyAuthenticated:
		return "", mcp.NewToolResultText(fmt.Sprintf(
			"No ClickUp workspace selected. Call %s to see your workspaces, then %s with the chosen id.",
			ToolListWorkspaces, ToolSelectWorkspace))
	case credentials.Unauthenticated:
		return "", mcp.NewToolResultText("ClickUp is not connected for this session.")
	default:
		return "", mcp.NewToolResultError("unknown ClickUp state")
	}
}
