package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"devbridge-go/internal/config"
	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
	"devbridge-go/internal/upstream"
)

// ClickUpEndpoint is ClickUp's OAuth endpoint. ClickUp wants client
// credentials in the token request body.
var ClickUpEndpoint = oauth2.Endpoint{
	AuthURL:   "https://app.clickup.com/api",
	TokenURL:  "https://api.clickup.com/api/v2/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Callback results, used as metric labels.
const (
	resultSuccess       = "success"
	resultDuplicate     = "duplicate"
	resultDenied        = "denied"
	resultMissingCode   = "missing_code"
	resultInvalidState  = "invalid_state"
	resultExchangeError = "exchange_failed"
)

const maxLoggedBody = 512

// Deps wires the login handlers. Endpoint fields default to the real
// providers and exist so tests can point them at fakes.
type Deps struct {
	Config     *config.Config
	Store      *credentials.Store
	States     *StateStore
	ClickUpAPI *upstream.ClickUpClient
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *observability.MetricsManager

	GitHubEndpoint  *oauth2.Endpoint
	ClickUpEndpoint *oauth2.Endpoint
}

type provider struct {
	name          string
	display       string
	frontendParam string
	configured    bool
	oauth         *oauth2.Config
	complete      func(ctx context.Context, tok *oauth2.Token) (credentials.Bundle, error)
	present       func(credentials.Bundle) bool
}

// Handlers serves the login and callback routes of the redirect flows.
type Handlers struct {
	cfg        *config.Config
	store      *credentials.Store
	states     *StateStore
	locks      *keyedMutex
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *observability.MetricsManager

	github  *provider
	clickup *provider
}

func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		cfg:        d.Config,
		store:      d.Store,
		states:     d.States,
		locks:      newKeyedMutex(),
		httpClient: d.HTTPClient,
		timeout:    d.Config.Upstream.Timeout.Std(),
		logger:     d.Logger.Named("oauth"),
		metrics:    d.Metrics,
	}
	if h.httpClient == nil {
		h.httpClient = &http.Client{}
	}

	ghEndpoint := oauthgithub.Endpoint
	if d.GitHubEndpoint != nil {
		ghEndpoint = *d.GitHubEndpoint
	}
	h.github = &provider{
		name:          upstream.ProviderGitHub,
		display:       "GitHub",
		frontendParam: "github_auth_code",
		configured:    d.Config.GitHubConfigured() && d.Config.GitHub.Flow == config.FlowRedirect,
		oauth: &oauth2.Config{
			ClientID:     d.Config.GitHub.ClientID,
			ClientSecret: d.Config.GitHub.ClientSecret,
			Endpoint:     ghEndpoint,
			RedirectURL:  d.Config.GitHubRedirectURL(),
			Scopes:       d.Config.GitHub.Scopes,
		},
		complete: func(_ context.Context, tok *oauth2.Token) (credentials.Bundle, error) {
			return credentials.Bundle{GitHub: githubAuth(tok)}, nil
		},
		present: func(b credentials.Bundle) bool { return b.GitHub != nil },
	}

	cuEndpoint := ClickUpEndpoint
	if d.ClickUpEndpoint != nil {
		cuEndpoint = *d.ClickUpEndpoint
	}
	clickupAPI := d.ClickUpAPI
	h.clickup = &provider{
		name:          upstream.ProviderClickUp,
		display:       "ClickUp",
		frontendParam: "clickup_auth_code",
		configured:    d.Config.ClickUpConfigured(),
		oauth: &oauth2.Config{
			ClientID:     d.Config.ClickUp.ClientID,
			ClientSecret: d.Config.ClickUp.ClientSecret,
			Endpoint:     cuEndpoint,
			RedirectURL:  d.Config.ClickUpRedirectURL(),
		},
		complete: func(ctx context.Context, tok *oauth2.Token) (credentials.Bundle, error) {
			teams, err := clickupAPI.Teams(ctx, tok.AccessToken)
			if err != nil {
				return credentials.Bundle{}, fmt.Errorf("list workspaces: %w", err)
			}
			ws := make([]credentials.Workspace, 0, len(teams))
			for _, t := range teams {
				ws = append(ws, credentials.Workspace{ID: t.ID, Name: t.Name})
			}
			cu := &credentials.ClickUpAuth{AccessToken: tok.AccessToken, Workspaces: ws}
			if len(ws) == 1 {
				cu.SelectedWorkspaceID = ws[0].ID
			}
			return credentials.Bundle{ClickUp: cu}, nil
		},
		present: func(b credentials.Bundle) bool { return b.ClickUp != nil },
	}
	return h
}

func githubAuth(tok *oauth2.Token) *credentials.GitHubAuth {
	scope, _ := tok.Extra("scope").(string)
	return &credentials.GitHubAuth{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
	}
}

func (h *Handlers) GitHubLogin() http.HandlerFunc    { return h.login(h.github) }
func (h *Handlers) GitHubCallback() http.HandlerFunc { return h.callback(h.github) }
func (h *Handlers) ClickUpLogin() http.HandlerFunc   { return h.login(h.clickup) }
func (h *Handlers) ClickUpCallback() http.HandlerFunc {
	return h.callback(h.clickup)
}

func (h *Handlers) login(p *provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !p.configured {
			http.Error(w, p.display+" login is not configured", http.StatusServiceUnavailable)
			return
		}
		state, err := h.states.Issue(p.name)
		if errors.Is(err, ErrTooManyStates) {
			h.logger.Warn("Refusing login, outstanding state table is full", zap.String("provider", p.name))
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too many logins in progress, retry later", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			h.logger.Error("Failed to issue OAuth state", zap.String("provider", p.name), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, p.oauth.AuthCodeURL(state), http.StatusFound)
	}
}

func (h *Handlers) callback(p *provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := h.logger.With(zap.String("provider", p.name))
		q := r.URL.Query()

		if e := q.Get("error"); e != "" {
			h.metrics.RecordOAuthCallback(p.name, resultDenied)
			log.Warn("Provider returned an authorization error", zap.String("error", truncate(e, 64)))
			http.Error(w, p.display+" authorization was not granted", http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			h.metrics.RecordOAuthCallback(p.name, resultMissingCode)
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			return
		}
		state := q.Get("state")
		if err := h.states.Verify(state, p.name); err != nil {
			h.rejectState(w, p, log, err)
			return
		}
		if !p.configured {
			http.Error(w, p.display+" login is not configured", http.StatusServiceUnavailable)
			return
		}

		unlock := h.locks.Lock(code)
		defer unlock()

		// A reloaded callback page repeats a request whose state was already
		// consumed; it is answered from the pending entry before the nonce
		// check.
		ctx := r.Context()
		if cur, ok, err := h.store.Pending.Get(ctx, code); err == nil && ok && p.present(cur) {
			h.metrics.RecordOAuthCallback(p.name, resultDuplicate)
			http.Redirect(w, r, h.frontendRedirect(p, code), http.StatusFound)
			return
		}
		if err := h.states.Consume(state, p.name); err != nil {
			h.rejectState(w, p, log, err)
			return
		}

		part, err := h.exchange(ctx, p, code)
		if err != nil {
			h.metrics.RecordOAuthCallback(p.name, resultExchangeError)
			log.Error("OAuth exchange failed", zap.String("code", MaskSecret(code)), zap.Error(err))
			http.Error(w, "Failed to complete "+p.display+" login", http.StatusInternalServerError)
			return
		}
		if err := h.store.AddPending(ctx, code, part); err != nil {
			h.metrics.RecordOAuthCallback(p.name, resultExchangeError)
			log.Error("Failed to store pending credentials", zap.Error(err))
			http.Error(w, "Failed to complete "+p.display+" login", http.StatusInternalServerError)
			return
		}

		h.metrics.RecordOAuthCallback(p.name, resultSuccess)
		log.Info("OAuth login completed, awaiting claim", zap.String("code", MaskSecret(code)))
		http.Redirect(w, r, h.frontendRedirect(p, code), http.StatusFound)
	}
}

func (h *Handlers) rejectState(w http.ResponseWriter, p *provider, log *zap.Logger, err error) {
	h.metrics.RecordOAuthCallback(p.name, resultInvalidState)
	log.Warn("Rejected OAuth callback", zap.Error(err))
	http.Error(w, "Invalid or expired state", http.StatusBadRequest)
}

// exchange trades the code for credentials under the outbound timeout.
func (h *Handlers) exchange(ctx context.Context, p *provider, code string) (credentials.Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return credentials.Bundle{}, fmt.Errorf("%w: %s", ErrExchangeFailed, describeError(err))
	}
	b, err := p.complete(ctx, tok)
	if err != nil {
		return credentials.Bundle{}, fmt.Errorf("%w: %s", ErrExchangeFailed, describeError(err))
	}
	return b, nil
}

// describeError renders provider failures with response bodies redacted.
func describeError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return fmt.Sprintf("token endpoint status %d: %s", status,
			RedactSensitiveData(truncate(string(re.Body), maxLoggedBody)))
	}
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return fmt.Sprintf("%s: %s", ue.Error(), RedactSensitiveData(truncate(ue.Body, maxLoggedBody)))
	}
	return RedactSensitiveData(err.Error())
}

func (h *Handlers) frontendRedirect(p *provider, code string) string {
	return h.cfg.FrontendURL + "/?" + url.Values{p.frontendParam: {code}}.Encode()
}

// LoginHints maps each provider's display name to where a user starts its
// login. Used in authentication-pending answers.
func LoginHints(cfg *config.Config) map[string]string {
	hints := map[string]string{
		"ClickUp": cfg.PublicBaseURL + "/clickup/login",
	}
	if cfg.GitHub.Flow == config.FlowDevice {
		hints["GitHub"] = "call the github_login tool"
	} else {
		hints["GitHub"] = cfg.PublicBaseURL + "/github/login"
	}
	return hints
}
