package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/reqcontext"
)

var (
	githubOnly  = credentials.Bundle{GitHub: &credentials.GitHubAuth{AccessToken: "gh"}}
	clickupPart = credentials.Bundle{ClickUp: &credentials.ClickUpAuth{AccessToken: "cu"}}
	both        = credentials.Bundle{
		GitHub:  &credentials.GitHubAuth{AccessToken: "gh"},
		ClickUp: &credentials.ClickUpAuth{AccessToken: "cu", SelectedWorkspaceID: "1"},
	}
)

func TestMissing(t *testing.T) {
	tests := []struct {
		name   string
		req    Requirement
		bundle credentials.Bundle
		want   []string
	}{
		{"none needs nothing", None, credentials.Bundle{}, nil},
		{"github missing", GitHub, credentials.Bundle{}, []string{"GitHub"}},
		{"github present", GitHub, githubOnly, nil},
		{"clickup partial is enough", ClickUp, clickupPart, nil},
		{"clickup missing", ClickUp, githubOnly, []string{"ClickUp"}},
		{"both missing in fixed order", Both, credentials.Bundle{}, []string{"GitHub", "ClickUp"}},
		{"both with github only", Both, githubOnly, []string{"ClickUp"}},
		{"both with clickup only", Both, clickupPart, []string{"GitHub"}},
		{"both satisfied", Both, both, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Missing(tt.req, tt.bundle))
		})
	}
}

func newGate(t *testing.T) (*Gate, *credentials.Store) {
	store := credentials.NewStore(credentials.NewMemoryTable(time.Minute), credentials.NewMemoryTable(0))
	g := New(store, zap.NewNop(), observability.NewMetricsManager(zap.NewNop().Sugar()), nil, map[string]string{
		"GitHub":  "http://gw/github/login",
		"ClickUp": "http://gw/clickup/login",
	})
	return g, store
}

func call(name string) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name}}
}

func TestWrap_DeniesWithoutCallingHandler(t *testing.T) {
	g, store := newGate(t)
	ctx := reqcontext.WithSessionID(context.Background(), "S")
	require.NoError(t, store.Sessions.Set(ctx, "S", githubOnly))

	called := false
	h := g.Wrap(Both, func(context.Context, mcp.CallToolRequest, credentials.Bundle) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ran"), nil
	})

	res, err := h(ctx, call("relatorio_semanal"))
	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, res.IsError)
	assert.Contains(t, mcp.GetTextFromContent(res.Content[0]), "Authentication pending for: ClickUp")

	p, ok := res.StructuredContent.(Pending)
	require.True(t, ok)
	assert.Equal(t, StatusAuthenticationPending, p.Status)
	assert.Equal(t, []string{"ClickUp"}, p.Missing)
	assert.Equal(t, map[string]string{"ClickUp": "http://gw/clickup/login"}, p.Login)
}

func TestWrap_PassesExactBundle(t *testing.T) {
	g, store := newGate(t)
	ctx := reqcontext.WithSessionID(context.Background(), "S")
	require.NoError(t, store.Sessions.Set(ctx, "S", both))

	var got credentials.Bundle
	h := g.Wrap(Both, func(_ context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
		got = creds
		return mcp.NewToolResultText("ran"), nil
	})

	res, err := h(ctx, call("sincronizar_issue_para_clickup"))
	require.NoError(t, err)
	assert.Equal(t, "ran", mcp.GetTextFromContent(res.Content[0]))
	assert.Equal(t, both, got)
}

func TestWrap_NoneRunsForEmptySession(t *testing.T) {
	g, _ := newGate(t)
	ctx := reqcontext.WithSessionID(context.Background(), "fresh")

	h := g.Wrap(None, func(_ context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
		assert.True(t, creds.IsEmpty())
		return mcp.NewToolResultText("ok"), nil
	})
	res, err := h(ctx, call("auth_status"))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestWrap_MissingSessionIsInternalError(t *testing.T) {
	g, _ := newGate(t)
	called := false
	h := g.Wrap(None, func(context.Context, mcp.CallToolRequest, credentials.Bundle) (*mcp.CallToolResult, error) {
		called = true
		return nil, nil
	})

	res, err := h(context.Background(), call("auth_status"))
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, res.IsError)
	assert.Contains(t, mcp.GetTextFromContent(res.Content[0]), "session not resolved")
}

func TestWrap_HandlerErrorBecomesToolError(t *testing.T) {
	g, _ := newGate(t)
	ctx := reqcontext.WithSessionID(context.Background(), "S")
	h := g.Wrap(None, func(context.Context, mcp.CallToolRequest, credentials.Bundle) (*mcp.CallToolResult, error) {
		return nil, errors.New("boom")
	})

	res, err := h(ctx, call("auth_status"))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.NotContains(t, mcp.GetTextFromContent(res.Content[0]), "boom")
}
