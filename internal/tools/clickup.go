package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/gate"
	"devbridge-go/internal/upstream"
)

func (t *Toolset) registerClickUp(s *server.MCPServer) {
	listWorkspaces := mcp.NewTool(ToolListWorkspaces,
		mcp.WithDescription("List the ClickUp workspaces granted at login and show which one is selected."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listWorkspaces, t.gate.Wrap(gate.ClickUp, t.handleListWorkspaces))

	selectWorkspace := mcp.NewTool(ToolSelectWorkspace,
		mcp.WithDescription("Select the ClickUp workspace used by the other ClickUp tools."),
		mcp.WithString("workspaceId",
			mcp.Required(),
			mcp.Description("Workspace id, as shown by "+ToolListWorkspaces+"."),
		),
	)
	s.AddTool(selectWorkspace, t.gate.Wrap(gate.ClickUp, t.handleSelectWorkspace))

	listLists := mcp.NewTool(ToolListLists,
		mcp.WithDescription("Show every task list inside a ClickUp space of the selected workspace."),
		mcp.WithString("nomeDoEspaco",
			mcp.Required(),
			mcp.Description("Space name (case-insensitive)."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listLists, t.gate.Wrap(gate.ClickUp, t.handleListLists))
}

type workspaceView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

func (t *Toolset) handleListWorkspaces(_ context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	cu := creds.ClickUp
	if len(cu.Workspaces) == 0 {
		return mcp.NewToolResultText("Your ClickUp login did not grant access to any workspace."), nil
	}

	views := make([]workspaceView, 0, len(cu.Workspaces))
	var b strings.Builder
	b.WriteString("ClickUp workspaces:\n")
	for _, ws := range cu.Workspaces {
		v := workspaceView{ID: ws.ID, Name: ws.Name, Selected: ws.ID == cu.SelectedWorkspaceID}
		views = append(views, v)
		fmt.Fprintf(&b, "- %s (id %s)", ws.Name, ws.ID)
		if v.Selected {
			b.WriteString(" [selected]")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultStructured(map[string]interface{}{"workspaces": views}, strings.TrimRight(b.String(), "\n")), nil
}

func (t *Toolset) handleSelectWorkspace(ctx context.Context, req mcp.CallToolRequest, _ credentials.Bundle) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workspaceId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sid, ok := gate.SessionID(ctx)
	if !ok {
		return nil, gate.ErrSessionNotResolved
	}

	ws, err := t.store.SelectWorkspace(ctx, sid, strings.TrimSpace(id))
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Workspace %q not found. Call %s to see the available ids.", id, ToolListWorkspaces)), nil
	case errors.Is(err, credentials.ErrNotAuthenticated):
		return mcp.NewToolResultText("ClickUp is not connected for this session."), nil
	case err != nil:
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Workspace %s (id %s) selected.", ws.Name, ws.ID)), nil
}

func (t *Toolset) handleListLists(ctx context.Context, req mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("nomeDoEspaco")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	teamID, pending := selectedWorkspace(creds)
	if pending != nil {
		return pending, nil
	}
	token := creds.ClickUp.AccessToken

	spaces, err := t.clickup.Spaces(ctx, token, teamID)
	if err != nil {
		return t.failure(ToolListLists, err), nil
	}
	var space *upstream.Space
	for i := range spaces {
		if strings.EqualFold(spaces[i].Name, strings.TrimSpace(name)) {
			space = &spaces[i]
			break
		}
	}
	if space == nil {
		return mcp.NewToolResultText(fmt.Sprintf("Space %q not found.", name)), nil
	}

	var (
		lists   []upstream.List
		folders []upstream.Folder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lists, err = t.clickup.SpaceLists(gctx, token, space.ID)
		return err
	})
	g.Go(func() error {
		var err error
		folders, err = t.clickup.Folders(gctx, token, space.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return t.failure(ToolListLists, err), nil
	}

	var b strings.Builder
	count := 0
	for _, l := range lists {
		fmt.Fprintf(&b, "- %s\n", l.Name)
		count++
	}
	for _, f := range folders {
		for _, l := range f.Lists {
			fmt.Fprintf(&b, "- %s (folder %s)\n", l.Name, f.Name)
			count++
		}
	}
	if count == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No lists found in space %q.", space.Name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Lists in space %q:\n%s", space.Name, strings.TrimRight(b.String(), "\n"))), nil
}
