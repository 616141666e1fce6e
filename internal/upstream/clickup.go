package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Folder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Lists []List `json:"lists"`
}

type ClickUpUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Task struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	DateDone string `json:"date_done"`
	Status   struct {
		Status string `json:"status"`
	} `json:"status"`
}

// CreateTaskRequest follows the ClickUp task body. Priority runs from 1
// (urgent) to 4 (low); nil leaves it unset.
type CreateTaskRequest struct {
	Name                string `json:"name"`
	MarkdownDescription string `json:"markdown_description,omitempty"`
	Priority            *int   `json:"priority,omitempty"`
	Assignees           []int  `json:"assignees,omitempty"`
}

// ClickUpClient calls the ClickUp v2 API. ClickUp expects the raw OAuth
// token in the Authorization header, without a scheme.
type ClickUpClient struct {
	client
}

func NewClickUpClient(opts Options) *ClickUpClient {
	c := newClient(ProviderClickUp, opts, func(h http.Header, token string) {
		h.Set("Authorization", token)
	}, "application/json")
	return &ClickUpClient{client: c}
}

// Teams lists the workspaces the token grants access to.
func (c *ClickUpClient) Teams(ctx context.Context, token string) ([]Team, error) {
	var res struct {
		Teams []Team `json:"teams"`
	}
	if err := c.do(ctx, http.MethodGet, "/team", nil, token, nil, &res); err != nil {
		return nil, err
	}
	return res.Teams, nil
}

func (c *ClickUpClient) Spaces(ctx context.Context, token, teamID string) ([]Space, error) {
	var res struct {
		Spaces []Space `json:"spaces"`
	}
	if err := c.do(ctx, http.MethodGet, "/team/"+url.PathEscape(teamID)+"/space", nil, token, nil, &res); err != nil {
		return nil, err
	}
	return res.Spaces, nil
}

// SpaceLists returns the folderless lists of a space.
func (c *ClickUpClient) SpaceLists(ctx context.Context, token, spaceID string) ([]List, error) {
	var res struct {
		Lists []List `json:"lists"`
	}
	if err := c.do(ctx, http.MethodGet, "/space/"+url.PathEscape(spaceID)+"/list", nil, token, nil, &res); err != nil {
		return nil, err
	}
	return res.Lists, nil
}

func (c *ClickUpClient) Folders(ctx context.Context, token, spaceID string) ([]Folder, error) {
	var res struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.do(ctx, http.MethodGet, "/space/"+url.PathEscape(spaceID)+"/folder", nil, token, nil, &res); err != nil {
		return nil, err
	}
	return res.Folders, nil
}

func (c *ClickUpClient) CreateTask(ctx context.Context, token, listID string, req CreateTaskRequest) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/list/"+url.PathEscape(listID)+"/task", nil, token, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *ClickUpClient) CurrentUser(ctx context.Context, token string) (*ClickUpUser, error) {
	var res struct {
		User ClickUpUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", nil, token, nil, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// CompletedTasks returns tasks of a workspace closed after since, optionally
// restricted to one assignee (0 means anyone).
func (c *ClickUpClient) CompletedTasks(ctx context.Context, token, teamID string, since time.Time, assignee int) ([]Task, error) {
	q := url.Values{
		"include_closed": {"true"},
		"subtasks":       {"true"},
		"date_done_gt":   {strconv.FormatInt(since.UnixMilli(), 10)},
	}
	if assignee != 0 {
		q.Set("assignees[]", strconv.Itoa(assignee))
	}
	var res struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/team/"+url.PathEscape(teamID)+"/task", q, token, nil, &res); err != nil {
		return nil, err
	}
	done := res.Tasks[:0]
	for _, t := range res.Tasks {
		if t.DateDone != "" {
			done = append(done, t)
		}
	}
	return done, nil
}
