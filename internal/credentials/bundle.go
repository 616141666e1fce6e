// Package credentials holds the per-session OAuth credential tables and the
// pending -> session claim handshake.
package credentials

// GitHubAuth is the result of a GitHub token exchange. Only AccessToken is
// used by the tools.
type GitHubAuth struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Workspace is a ClickUp team the user granted access to.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClickUpAuth is a ClickUp token plus the workspaces captured at exchange
// time. SelectedWorkspaceID is empty until the user picks one.
type ClickUpAuth struct {
	AccessToken         string      `json:"access_token"`
	SelectedWorkspaceID string      `json:"selected_workspace_id,omitempty"`
	Workspaces          []Workspace `json:"workspaces,omitempty"`
}

// Workspace returns the workspace with the given id.
func (c *ClickUpAuth) Workspace(id string) (Workspace, bool) {
	for _, ws := range c.Workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return Workspace{}, false
}

// Bundle is the set of provider credentials owned by one key.
type Bundle struct {
	GitHub  *GitHubAuth  `json:"github,omitempty"`
	ClickUp *ClickUpAuth `json:"clickup,omitempty"`
}

// ProviderStatus is the authentication state of one provider in a bundle.
type ProviderStatus int

const (
	Unauthenticated ProviderStatus = iota
	PartiallyAuthenticated
	Ready
)

func (s ProviderStatus) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case PartiallyAuthenticated:
		return "partially_authenticated"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

func (s ProviderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// GitHubStatus is Ready once a token is present. GitHub has no partial state.
func (b Bundle) GitHubStatus() ProviderStatus {
	if b.GitHub == nil || b.GitHub.AccessToken == "" {
		return Unauthenticated
	}
	return Ready
}

// ClickUpStatus is PartiallyAuthenticated while a token exists but no
// workspace has been selected.
func (b Bundle) ClickUpStatus() ProviderStatus {
	switch {
	case b.ClickUp == nil || b.ClickUp.AccessToken == "":
		return Unauthenticated
	case b.ClickUp.SelectedWorkspaceID == "":
		return PartiallyAuthenticated
	default:
		return Ready
	}
}

func (b Bundle) IsEmpty() bool {
	return b.GitHub == nil && b.ClickUp == nil
}

// Merge combines two bundles provider by provider, taking each part from
// primary when present and from fallback otherwise.
func Merge(primary, fallback Bundle) Bundle {
	out := fallback.Clone()
	if primary.GitHub != nil {
		g := *primary.GitHub
		out.GitHub = &g
	}
	if primary.ClickUp != nil {
		out.ClickUp = primary.ClickUp.clone()
	}
	return out
}

// Clone returns a deep copy so callers never share mutable parts.
func (b Bundle) Clone() Bundle {
	var out Bundle
	if b.GitHub != nil {
		g := *b.GitHub
		out.GitHub = &g
	}
	if b.ClickUp != nil {
		out.ClickUp = b.ClickUp.clone()
	}
	return out
}

func (c *ClickUpAuth) clone() *ClickUpAuth {
	cp := *c
	if c.Workspaces != nil {
		cp.Workspaces = append([]Workspace(nil), c.Workspaces...)
	}
	return &cp
}
