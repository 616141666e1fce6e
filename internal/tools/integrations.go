package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"devbridge-go/internal/credentials"
	"devbridge-go/internal/gate"
	"devbridge-go/internal/upstream"
)

const (
	reportWindow   = 7 * 24 * time.Hour
	reportMaxItems = 10
	// listSearchConcurrency bounds parallel space scans against ClickUp.
	listSearchConcurrency = 4
)

// priorities maps accepted priority words to ClickUp's 1 (urgent) .. 4 (low).
var priorities = map[string]int{
	"urgente": 1,
	"urgent":  1,
	"alta":    2,
	"high":    2,
	"normal":  3,
	"baixa":   4,
	"low":     4,
}

var errListNotFound = errors.New("list not found")

func (t *Toolset) registerIntegrations(s *server.MCPServer) {
	syncIssue := mcp.NewTool(ToolSyncIssue,
		mcp.WithDescription("Create a GitHub issue and a linked ClickUp task in one step."),
		mcp.WithString("repositorio",
			mcp.Required(),
			mcp.Description("Target repository as owner/name."),
		),
		mcp.WithString("titulo",
			mcp.Required(),
			mcp.Description("Title shared by the issue and the task."),
		),
		mcp.WithString("listaClickup",
			mcp.Required(),
			mcp.Description("Name of the ClickUp list that receives the task (case-insensitive)."),
		),
		mcp.WithString("descricao",
			mcp.Description("Issue body, also used in the task description."),
		),
		mcp.WithString("prioridade",
			mcp.Description("Task priority."),
			mcp.Enum("urgente", "alta", "normal", "baixa"),
		),
		mcp.WithString("atribuidoPara",
			mcp.Description("GitHub username to assign the issue to."),
		),
	)
	s.AddTool(syncIssue, t.gate.Wrap(gate.Both, t.handleSyncIssue))

	report := mcp.NewTool(ToolWeeklyReport,
		mcp.WithDescription("Summarize the last 7 days: GitHub commits and closed issues plus completed ClickUp tasks."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(report, t.gate.Wrap(gate.Both, t.handleWeeklyReport))
}

type syncResult struct {
	Issue *upstream.Issue `json:"issue"`
	Task  *upstream.Task  `json:"task,omitempty"`
}

func (t *Toolset) handleSyncIssue(ctx context.Context, req mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	repoArg, err := req.RequireString("repositorio")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("titulo")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	listName, err := req.RequireString("listaClickup")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, repo, ok := splitRepo(repoArg)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("repositorio must look like owner/name, got %q", repoArg)), nil
	}
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("titulo must not be empty"), nil
	}

	var priority *int
	if p := strings.ToLower(strings.TrimSpace(req.GetString("prioridade", ""))); p != "" {
		v, ok := priorities[p]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown prioridade %q (use urgente, alta, normal or baixa)", p)), nil
		}
		priority = &v
	}

	teamID, pending := selectedWorkspace(creds)
	if pending != nil {
		return pending, nil
	}
	cuToken := creds.ClickUp.AccessToken

	// Resolve the list before creating anything so a typo leaves no orphan issue.
	list, err := t.findList(ctx, cuToken, teamID, listName)
	if errors.Is(err, errListNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf("ClickUp list %q not found in the selected workspace.", listName)), nil
	}
	if err != nil {
		return t.failure(ToolSyncIssue, err), nil
	}

	description := req.GetString("descricao", "")
	issueReq := upstream.CreateIssueRequest{Title: title, Body: description}
	if who := strings.TrimSpace(req.GetString("atribuidoPara", "")); who != "" {
		issueReq.Assignees = []string{strings.TrimPrefix(who, "@")}
	}
	issue, err := t.github.CreateIssue(ctx, creds.GitHub.AccessToken, owner, repo, issueReq)
	if err != nil {
		return t.failure(ToolSyncIssue, err), nil
	}

	task, err := t.clickup.CreateTask(ctx, cuToken, list.ID, upstream.CreateTaskRequest{
		Name:                title,
		MarkdownDescription: taskDescription(description, issue),
		Priority:            priority,
	})
	if err != nil {
		failed := t.failure(ToolSyncIssue, err)
		msg := fmt.Sprintf("GitHub issue #%d was created (%s) but the ClickUp task could not be created.", issue.Number, issue.HTMLURL)
		if text, ok := mcp.AsTextContent(firstContent(failed)); ok {
			msg += " " + text.Text
		}
		return mcp.NewToolResultError(msg), nil
	}

	t.logger.Info("Issue synced",
		zap.String("repo", owner+"/"+repo),
		zap.Int("issue", issue.Number),
		zap.String("task_id", task.ID))
	text := fmt.Sprintf("GitHub issue #%d created: %s\nClickUp task created in list %q: %s", issue.Number, issue.HTMLURL, list.Name, task.URL)
	return mcp.NewToolResultStructured(syncResult{Issue: issue, Task: task}, text), nil
}

func firstContent(r *mcp.CallToolResult) mcp.Content {
	if r == nil || len(r.Content) == 0 {
		return nil
	}
	return r.Content[0]
}

func splitRepo(s string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

func taskDescription(body string, issue *upstream.Issue) string {
	link := fmt.Sprintf("GitHub issue: [#%d](%s)", issue.Number, issue.HTMLURL)
	if strings.TrimSpace(body) == "" {
		return link
	}
	return body + "\n\n" + link
}

// findList searches every space of the workspace, including folder lists,
// and returns the first case-insensitive name match in space order.
func (t *Toolset) findList(ctx context.Context, token, teamID, name string) (*upstream.List, error) {
	spaces, err := t.clickup.Spaces(ctx, token, teamID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)

	found := make([]*upstream.List, len(spaces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listSearchConcurrency)
	for i, sp := range spaces {
		g.Go(func() error {
			lists, err := t.clickup.SpaceLists(gctx, token, sp.ID)
			if err != nil {
				return err
			}
			folders, err := t.clickup.Folders(gctx, token, sp.ID)
			if err != nil {
				return err
			}
			for _, f := range folders {
				lists = append(lists, f.Lists...)
			}
			for j := range lists {
				if strings.EqualFold(lists[j].Name, name) {
					found[i] = &lists[j]
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, l := range found {
		if l != nil {
			return l, nil
		}
	}
	return nil, errListNotFound
}

// WeeklyReport is the structured content of relatorio_semanal.
type WeeklyReport struct {
	Since          time.Time        `json:"since"`
	GitHubLogin    string           `json:"githubLogin"`
	Commits        int              `json:"commits"`
	ClosedIssues   []upstream.Issue `json:"closedIssues"`
	ClosedTotal    int              `json:"closedIssuesTotal"`
	CompletedTasks []upstream.Task  `json:"completedTasks"`
}

func (t *Toolset) handleWeeklyReport(ctx context.Context, _ mcp.CallToolRequest, creds credentials.Bundle) (*mcp.CallToolResult, error) {
	teamID, pending := selectedWorkspace(creds)
	if pending != nil {
		return pending, nil
	}
	ghToken := creds.GitHub.AccessToken
	cuToken := creds.ClickUp.AccessToken
	since := t.now().Add(-reportWindow)
	report := WeeklyReport{Since: since}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := t.github.CurrentUser(gctx, ghToken)
		if err != nil {
			return err
		}
		report.GitHubLogin = user.Login

		inner, ictx := errgroup.WithContext(gctx)
		inner.Go(func() error {
			events, err := t.github.UserEvents(ictx, ghToken, user.Login)
			if err != nil {
				return err
			}
			for _, e := range events {
				if e.Type == "PushEvent" && e.CreatedAt.After(since) {
					report.Commits += e.CommitCount()
				}
			}
			return nil
		})
		inner.Go(func() error {
			q := fmt.Sprintf("is:issue is:closed involves:%s closed:>=%s", user.Login, since.UTC().Format("2006-01-02"))
			res, err := t.github.SearchIssues(ictx, ghToken, q)
			if err != nil {
				return err
			}
			report.ClosedTotal = res.TotalCount
			report.ClosedIssues = res.Items
			return nil
		})
		return inner.Wait()
	})
	g.Go(func() error {
		user, err := t.clickup.CurrentUser(gctx, cuToken)
		if err != nil {
			return err
		}
		tasks, err := t.clickup.CompletedTasks(gctx, cuToken, teamID, since, user.ID)
		if err != nil {
			return err
		}
		report.CompletedTasks = tasks
		return nil
	})
	if err := g.Wait(); err != nil {
		return t.failure(ToolWeeklyReport, err), nil
	}

	return mcp.NewToolResultStructured(report, formatReport(report)), nil
}

func formatReport(r WeeklyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weekly report since %s\n\n", r.Since.UTC().Format("2006-01-02"))

	fmt.Fprintf(&b, "GitHub (%s)\n", r.GitHubLogin)
	fmt.Fprintf(&b, "- Commits pushed: %d\n", r.Commits)
	fmt.Fprintf(&b, "- Issues closed: %d\n", r.ClosedTotal)
	issues := append([]upstream.Issue(nil), r.ClosedIssues...)
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].ClosedAt == nil || issues[j].ClosedAt == nil {
			return issues[j].ClosedAt == nil && issues[i].ClosedAt != nil
		}
		return issues[i].ClosedAt.After(*issues[j].ClosedAt)
	})
	for i, is := range issues {
		if i == reportMaxItems {
			fmt.Fprintf(&b, "  ... and %d more\n", len(issues)-reportMaxItems)
			break
		}
		fmt.Fprintf(&b, "  - #%d %s\n", is.Number, is.Title)
	}

	b.WriteString("\nClickUp\n")
	fmt.Fprintf(&b, "- Tasks completed: %d\n", len(r.CompletedTasks))
	for i, task := range r.CompletedTasks {
		if i == reportMaxItems {
			fmt.Fprintf(&b, "  ... and %d more\n", len(r.CompletedTasks)-reportMaxItems)
			break
		}
		fmt.Fprintf(&b, "  - %s\n", task.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}
