package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devbridge-go/internal/credentials"
)

const initBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0"}}}`

const badSessionBody = `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Bad Request: No valid session ID provided"},"id":null}`

type routerFixture struct {
	router *Router
	store  *credentials.Store
	mcp    *mcpserver.MCPServer
}

func newRouterFixture(t *testing.T, mcpSrv *mcpserver.MCPServer) *routerFixture {
	t.Helper()
	if mcpSrv == nil {
		mcpSrv = NewMCPServer("test", zap.NewNop())
		mcpSrv.AddTool(mcp.NewTool("echo", mcp.WithString("text")), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(req.GetString("text", "")), nil
		})
	}
	store := credentials.NewStore(credentials.NewMemoryTable(time.Minute), credentials.NewMemoryTable(0))
	r := NewRouter(RouterDeps{
		MCP:         mcpSrv,
		Credentials: store,
		IdleTimeout: 30 * time.Minute,
		Logger:      zap.NewNop(),
	})
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return &routerFixture{router: r, store: store, mcp: mcpSrv}
}

func (f *routerFixture) do(method, sessionID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) initialize(t *testing.T) string {
	t.Helper()
	rec := f.do(http.MethodPost, "", initBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sid := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sid)
	return sid
}

func TestInitializeCreatesSession(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(http.MethodPost, "", initBody)
	require.Equal(t, http.StatusOK, rec.Code)
	sid := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sid)
	assert.True(t, f.router.Known(sid))
	assert.Equal(t, 1, f.router.Sessions().Count())

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ID)
	assert.Equal(t, ServerName, resp.Result.ServerInfo.Name)

	rec = f.do(http.MethodPost, sid, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sid, rec.Header().Get(HeaderSessionID))
	assert.Contains(t, rec.Body.String(), `"text":"hi"`)
	assert.Equal(t, 1, f.router.Sessions().Count(), "routing must not create sessions")

	info := f.router.Sessions().Info(time.Now())
	require.Len(t, info, 1)
	assert.Equal(t, "test-client", info[0].ClientName)
}

func TestMessagesOfOneSessionAreSerialized(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	mcpSrv := NewMCPServer("test", zap.NewNop())
	mcpSrv.AddTool(mcp.NewTool("hold"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entered <- struct{}{}
		<-release
		return mcp.NewToolResultText("held"), nil
	})
	mcpSrv.AddTool(mcp.NewTool("echo", mcp.WithString("text")), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(req.GetString("text", "")), nil
	})
	f := newRouterFixture(t, mcpSrv)
	a := f.initialize(t)
	b := f.initialize(t)

	const holdCall = `{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"hold"}}`
	results := make([]*httptest.ResponseRecorder, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.do(http.MethodPost, a, fmt.Sprintf(holdCall, 10+i))
		}(i)
		if i == 0 {
			<-entered
		}
	}

	// The other session is not held up by a.
	rec := f.do(http.MethodPost, b, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"free"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"text":"free"`)

	select {
	case <-entered:
		t.Fatal("second message of a session ran while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	select {
	case <-entered:
	default:
		t.Fatal("second message never ran")
	}
	for _, res := range results {
		require.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), `"text":"held"`)
	}
}

func TestEachInitializeGetsItsOwnSession(t *testing.T) {
	f := newRouterFixture(t, nil)
	a := f.initialize(t)
	b := f.initialize(t)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, f.router.Sessions().Count())
}

func TestUnattributedTrafficRejected(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		body      string
	}{
		{"no header, not initialize", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`},
		{"unknown session", "nope", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`},
		{"initialize with unknown session", "nope", initBody},
		{"batch", "", `[` + initBody + `]`},
		{"malformed json", "", `{"jsonrpc":`},
		{"empty body", "", ``},
		{"notification without session", "", `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, nil)
			rec := f.do(http.MethodPost, tt.sessionID, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, badSessionBody, rec.Body.String())
			assert.Empty(t, rec.Header().Get(HeaderSessionID))
			assert.Equal(t, 0, f.router.Sessions().Count())
		})
	}
}

func TestNotificationAccepted(t *testing.T) {
	f := newRouterFixture(t, nil)
	sid := f.initialize(t)

	rec := f.do(http.MethodPost, sid, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDeleteClosesSessionAndForgetsCredentials(t *testing.T) {
	f := newRouterFixture(t, nil)
	sid := f.initialize(t)
	ctx := context.Background()
	require.NoError(t, f.store.Sessions.Set(ctx, sid, credentials.Bundle{
		GitHub: &credentials.GitHubAuth{AccessToken: "tok"},
	}))

	rec := f.do(http.MethodDelete, sid, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.router.Known(sid))

	_, found, err := f.store.Sessions.Get(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)

	rec = f.do(http.MethodPost, sid, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, sid, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidSession, strings.TrimSpace(rec.Body.String()))
}

func TestStreamRejectsUnknownSession(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(http.MethodGet, "missing", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidSession, strings.TrimSpace(rec.Body.String()))
}

func TestMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(http.MethodPut, "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPanicReturnsInternalErrorEnvelope(t *testing.T) {
	hooks := &mcpserver.Hooks{}
	hooks.AddBeforeAny(func(_ context.Context, _ any, method mcp.MCPMethod, _ any) {
		if method == mcp.MethodPing {
			panic("boom")
		}
	})
	f := newRouterFixture(t, mcpserver.NewMCPServer("test", "0", mcpserver.WithHooks(hooks)))
	sid := f.initialize(t)

	rec := f.do(http.MethodPost, sid, `{"jsonrpc":"2.0","id":"req-7","method":"ping"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal server error"},"id":"req-7"}`, rec.Body.String())
	assert.True(t, f.router.Known(sid), "a failed message does not end the session")
}

func TestSweepIdle(t *testing.T) {
	f := newRouterFixture(t, nil)
	stale := f.initialize(t)
	fresh := f.initialize(t)

	now := time.Now()
	f.router.now = func() time.Time { return now.Add(31 * time.Minute) }
	f.do(http.MethodPost, fresh, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)

	assert.Equal(t, 1, f.router.SweepIdle(now.Add(31*time.Minute)))
	assert.False(t, f.router.Known(stale))
	assert.True(t, f.router.Known(fresh))
}

func TestShutdownClosesSessions(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.initialize(t)
	f.initialize(t)

	f.router.Shutdown(context.Background())
	assert.Equal(t, 0, f.router.Sessions().Count())
	assert.ErrorIs(t, f.router.Check(context.Background()), ErrRouterClosed)

	rec := f.do(http.MethodPost, "", initBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":1`)
}

func TestStreamDeliversNotifications(t *testing.T) {
	f := newRouterFixture(t, nil)
	ts := httptest.NewServer(f.router)
	defer ts.Close()
	sid := f.initialize(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderSessionID, sid)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		s, ok := f.router.sessions.get(sid)
		return ok && s.streaming.Load()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.mcp.SendNotificationToSpecificClient(sid, "notifications/message", map[string]any{"data": "hello"}))

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var data string
	timeout := time.After(2 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
		case <-timeout:
			t.Fatal("no notification received")
		}
	}
	assert.Contains(t, data, `"method":"notifications/message"`)

	f.router.Close(context.Background(), sid, ReasonClient)
	select {
	case _, ok := <-lines:
		for ok {
			_, ok = <-lines
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after close")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}
