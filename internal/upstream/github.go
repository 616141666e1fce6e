package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const githubAccept = "application/vnd.github+json"

type GitHubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type Repo struct {
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Private     bool      `json:"private"`
	PushedAt    time.Time `json:"pushed_at"`
}

type CreateRepoRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
}

type Issue struct {
	Number   int        `json:"number"`
	Title    string     `json:"title"`
	HTMLURL  string     `json:"html_url"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

type CreateIssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

type IssueSearch struct {
	TotalCount int     `json:"total_count"`
	Items      []Issue `json:"items"`
}

// Event is an entry of the user's public activity feed. Only PushEvent
// payloads are decoded.
type Event struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Repo      struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload struct {
		Size         int `json:"size"`
		DistinctSize int `json:"distinct_size"`
		Commits      []struct {
			SHA string `json:"sha"`
		} `json:"commits"`
	} `json:"payload"`
}

// CommitCount is the number of commits a PushEvent carried.
func (e Event) CommitCount() int {
	if e.Payload.Size > 0 {
		return e.Payload.Size
	}
	return len(e.Payload.Commits)
}

// GitHubClient calls the GitHub REST API with a user's bearer token.
type GitHubClient struct {
	client
}

func NewGitHubClient(opts Options) *GitHubClient {
	c := newClient(ProviderGitHub, opts, func(h http.Header, token string) {
		h.Set("Authorization", "Bearer "+token)
		h.Set("X-GitHub-Api-Version", "2022-11-28")
	}, githubAccept)
	return &GitHubClient{client: c}
}

func (c *GitHubClient) CurrentUser(ctx context.Context, token string) (*GitHubUser, error) {
	var u GitHubUser
	if err := c.do(ctx, http.MethodGet, "/user", nil, token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// RecentRepos lists the user's repositories, most recently pushed first.
func (c *GitHubClient) RecentRepos(ctx context.Context, token string, limit int) ([]Repo, error) {
	q := url.Values{"sort": {"pushed"}, "per_page": {strconv.Itoa(limit)}}
	var repos []Repo
	if err := c.do(ctx, http.MethodGet, "/user/repos", q, token, nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// CreateRepo creates a repository owned by the user. GitHub answers 422 when
// the name is taken.
func (c *GitHubClient) CreateRepo(ctx context.Context, token string, req CreateRepoRequest) (*Repo, error) {
	var repo Repo
	if err := c.do(ctx, http.MethodPost, "/user/repos", nil, token, req, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (c *GitHubClient) CreateIssue(ctx context.Context, token, owner, repo string, req CreateIssueRequest) (*Issue, error) {
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/issues"
	var issue Issue
	if err := c.do(ctx, http.MethodPost, path, nil, token, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UserEvents returns the most recent page of the user's activity feed.
func (c *GitHubClient) UserEvents(ctx context.Context, token, login string) ([]Event, error) {
	q := url.Values{"per_page": {"100"}}
	var events []Event
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(login)+"/events", q, token, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *GitHubClient) SearchIssues(ctx context.Context, token, query string) (*IssueSearch, error) {
	q := url.Values{"q": {query}, "per_page": {"100"}}
	var res IssueSearch
	if err := c.do(ctx, http.MethodGet, "/search/issues", q, token, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
