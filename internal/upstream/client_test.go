package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devbridge-go/internal/observability"
)

func testOptions(url string) Options {
	return Options{
		BaseURL: url,
		Timeout: 2 * time.Second,
		Logger:  zap.NewNop(),
		Metrics: observability.NewMetricsManager(zap.NewNop().Sugar()),
	}
}

func TestGitHubClient_RecentRepos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/repos", r.URL.Path)
		assert.Equal(t, "pushed", r.URL.Query().Get("sort"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer gho_token", r.Header.Get("Authorization"))
		assert.Equal(t, githubAccept, r.Header.Get("Accept"))
		_ = json.NewEncoder(w).Encode([]Repo{{FullName: "me/one"}, {FullName: "me/two"}})
	}))
	defer srv.Close()

	repos, err := NewGitHubClient(testOptions(srv.URL)).RecentRepos(context.Background(), "gho_token", 10)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "me/one", repos[0].FullName)
}

func TestGitHubClient_CreateRepoConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body CreateRepoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "taken", body.Name)
		assert.True(t, body.Private)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Repository creation failed."}`))
	}))
	defer srv.Close()

	_, err := NewGitHubClient(testOptions(srv.URL)).CreateRepo(context.Background(), "t", CreateRepoRequest{Name: "taken", Private: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))

	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ProviderGitHub, ue.Provider)
	assert.Contains(t, ue.Body, "Repository creation failed")
}

func TestClickUpClient_RawTokenAndTeams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pk_raw", r.Header.Get("Authorization"))
		assert.Equal(t, "/team", r.URL.Path)
		_, _ = w.Write([]byte(`{"teams":[{"id":"9001","name":"Acme"}]}`))
	}))
	defer srv.Close()

	teams, err := NewClickUpClient(testOptions(srv.URL)).Teams(context.Background(), "pk_raw")
	require.NoError(t, err)
	assert.Equal(t, []Team{{ID: "9001", Name: "Acme"}}, teams)
}

func TestClickUpClient_CompletedTasks(t *testing.T) {
	since := time.UnixMilli(1700000000000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/team/9/task", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_closed"))
		assert.Equal(t, "1700000000000", r.URL.Query().Get("date_done_gt"))
		assert.Equal(t, "42", r.URL.Query().Get("assignees[]"))
		_, _ = w.Write([]byte(`{"tasks":[{"id":"a","name":"done","date_done":"1700000000500"},{"id":"b","name":"open"}]}`))
	}))
	defer srv.Close()

	tasks, err := NewClickUpClient(testOptions(srv.URL)).CompletedTasks(context.Background(), "t", "9", since, 42)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].ID)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := testOptions(srv.URL)
	opts.Timeout = 50 * time.Millisecond
	_, err := NewGitHubClient(opts).CurrentUser(context.Background(), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
	assert.NotErrorIs(t, err, ErrUpstream)
}

func TestEvent_CommitCount(t *testing.T) {
	var e Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"PushEvent","payload":{"commits":[{"sha":"a"},{"sha":"b"}]}}`), &e))
	assert.Equal(t, 2, e.CommitCount())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"PushEvent","payload":{"size":5}}`), &e))
	assert.Equal(t, 5, e.CommitCount())
}
