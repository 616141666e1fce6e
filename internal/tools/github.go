package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/gate"
	"devbridge-go/internal/upstream"
)

func (t *Toolset) registerGitHub(s *server.MCPServer) {
	myRepos := mcp.NewTool(ToolMyRepos,
		mcp.WithDescription(fmt.Sprintf("List the %d most recently pushed repositories of the authenticated GitHub user.", recentRepoLimit)),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(myRepos, t.gate.Wrap(gate.GitHub, t.handleMyRepos))

	createRepo := mcp.NewTool(ToolCreateRepo,
		mcp.WithDescription("Create a new GitHub repository owned by the authenticated user."),
		mcp.WithString("nome",
			mcp.Required(),
			mcp.Description("Repository name."),
		),
		mcp.WithString("descricao",
			mcp.Description("Short description."),
		),
		mcp.WithBoolean("privado",
			mcp.Description("Create the repository as private (default: false)."),
			mcp.DefaultBool(false),
		),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(createRepo, t.gate.Wrap(gate.GitHub, t.handleCreateRepo))
}

func (t *Toolset) handleMyRepos(ctx context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	repos, err := t.github.RecentRepos(ctx, creds.GitHub.AccessToken, recentRepoLimit)
	if err != nil {
		return t.failure(ToolMyRepos, err), nil
	}
	if len(repos) == 0 {
		return mcp.NewToolResultText("No repositories found."), nil
	}

	lines := make([]string, 0, len(repos))
	for _, r := range repos {
		lines = append(lines, "- "+r.FullName)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Your %d most recently pushed repositories:\n%s", len(repos), strings.Join(lines, "\n"))), nil
}

func (t *Toolset) handleCreateRepo(ctx context.Context, req mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("nome")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return mcp.NewToolResultError("nome must not be empty"), nil
	}

	repo, err := t.github.CreateRepo(ctx, creds.GitHub.AccessToken, upstream.CreateRepoRequest{
		Name:        name,
		Description: req.GetString("descricao", ""),
		Private:     req.GetBool("privado", false),
	})
	if upstream.StatusCode(err) == http.StatusUnprocessableEntity {
		return mcp.NewToolResultError(fmt.Sprintf("Could not create %q: a repository with this name probably already exists.", name)), nil
	}
	if err != nil {
		return t.failure(ToolCreateRepo, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Repository %q created.\nURL: %s", repo.FullName, repo.HTMLURL)), nil
}
