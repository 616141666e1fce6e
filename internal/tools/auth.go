package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/gate"
	"devbridge-go/internal/oauth"
)

func (t *Toolset) registerAuth(s *server.MCPServer) {
	status := mcp.NewTool(ToolAuthStatus,
		mcp.WithDescription("Show which providers this session is connected to."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(status, t.gate.Wrap(gate.None, t.handleAuthStatus))

	if t.device == nil {
		return
	}

	login := mcp.NewTool(ToolGitHubLogin,
		mcp.WithDescription("Start a GitHub login for this session. Returns a code to enter on github.com."),
	)
	s.AddTool(login, t.gate.Wrap(gate.None, t.handleGitHubLogin))

	check := mcp.NewTool(ToolGitHubLoginCheck,
		mcp.WithDescription("Check whether the GitHub login started with "+ToolGitHubLogin+" was approved."),
		mcp.WithString("attemptId",
			mcp.Required(),
			mcp.Description("Attempt id returned by "+ToolGitHubLogin+"."),
		),
	)
	s.AddTool(check, t.gate.Wrap(gate.None, t.handleGitHubLoginStatus))
}

// AuthStatus is the structured content of auth_status.
type AuthStatus struct {
	GitHub    string `json:"github"`
	ClickUp   string `json:"clickup"`
	Workspace string `json:"workspace,omitempty"`
}

func (t *Toolset) handleAuthStatus(_ context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	st := AuthStatus{
		GitHub:  creds.GitHubStatus().String(),
		ClickUp: creds.ClickUpStatus().String(),
	}
	if creds.ClickUpStatus() == credentials.Ready {
		if ws, ok := creds.ClickUp.Workspace(creds.ClickUp.SelectedWorkspaceID); ok {
			st.Workspace = ws.Name
		}
	}

	text := fmt.Sprintf("GitHub: %s\nClickUp: %s", st.GitHub, st.ClickUp)
	if st.Workspace != "" {
		text += fmt.Sprintf(" (workspace %s)", st.Workspace)
	}
	return mcp.NewToolResultStructured(st, text), nil
}

func (t *Toolset) handleGitHubLogin(ctx context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	if creds.GitHubStatus() == credentials.Ready {
		return mcp.NewToolResultText("GitHub is already connected for this session."), nil
	}
	sid, ok := gate.SessionID(ctx)
	if !ok {
		return nil, gate.ErrSessionNotResolved
	}

	in, err := t.device.StartLogin(ctx, sid)
	if err != nil {
		return t.failure(ToolGitHubLogin, err), nil
	}
	text := fmt.Sprintf("Open %s and enter the code %s.\nThe code expires at %s.\nAfter approving, call %s with attemptId %q.",
		in.VerificationURI, in.UserCode, in.ExpiresAt.UTC().Format(time.RFC3339), ToolGitHubLoginCheck, in.AttemptID)
	return mcp.NewToolResultStructured(in, text), nil
}

func (t *Toolset) handleGitHubLoginStatus(ctx context.Context, req mcp.CallToolRequest, _ credentials.Bundle) (*mcp.CallToolResult, error) {
	attemptID, err := req.RequireString("attemptId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sid, ok := gate.SessionID(ctx)
	if !ok {
		return nil, gate.ErrSessionNotResolved
	}

	_, pending, err := t.device.FinishLogin(ctx, sid, attemptID)
	switch {
	case errors.Is(err, oauth.ErrAttemptNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("No login attempt %q for this session. Call %s to start a new one.", attemptID, ToolGitHubLogin)), nil
	case errors.Is(err, oauth.ErrDeviceAccessDenied):
		return mcp.NewToolResultError("The GitHub login was denied."), nil
	case errors.Is(err, oauth.ErrDeviceExpired):
		return mcp.NewToolResultError(fmt.Sprintf("The GitHub code expired. Call %s to start again.", ToolGitHubLogin)), nil
	case err != nil:
		return t.failure(ToolGitHubLoginCheck, err), nil
	case pending:
		return mcp.NewToolResultText(fmt.Sprintf("Still waiting for approval on github.com. Call %s again in a few seconds.", ToolGitHubLoginCheck)), nil
	}
	return mcp.NewToolResultText("GitHub connected."), nil
}
