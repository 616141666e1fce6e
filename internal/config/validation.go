package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Validate fills in defaults for unset sections and rejects values the
// server cannot run with.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.FrontendURL == "" {
		c.FrontendURL = def.FrontendURL
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = baseURLFromListen(c.Listen)
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")

	for name, raw := range map[string]string{"frontend_url": c.FrontendURL, "public_base_url": c.PublicBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL, got %q", ErrInvalidConfig, name, raw)
		}
	}

	if c.GitHub == nil {
		c.GitHub = def.GitHub
	}
	if len(c.GitHub.Scopes) == 0 {
		c.GitHub.Scopes = def.GitHub.Scopes
	}
	if c.GitHub.Flow == "" {
		c.GitHub.Flow = FlowRedirect
	}
	if c.GitHub.Flow != FlowRedirect && c.GitHub.Flow != FlowDevice {
		return fmt.Errorf("%w: github.flow must be %q or %q, got %q", ErrInvalidConfig, FlowRedirect, FlowDevice, c.GitHub.Flow)
	}
	if c.GitHub.CallbackPath == "" {
		c.GitHub.CallbackPath = def.GitHub.CallbackPath
	}

	if c.ClickUp == nil {
		c.ClickUp = def.ClickUp
	}
	if c.ClickUp.CallbackPath == "" {
		c.ClickUp.CallbackPath = def.ClickUp.CallbackPath
	}

	if c.OAuth == nil {
		c.OAuth = def.OAuth
	}
	defaultDuration(&c.OAuth.StateTTL, def.OAuth.StateTTL)

	if c.Credentials == nil {
		c.Credentials = def.Credentials
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = BackendMemory
	}
	if c.Credentials.Backend != BackendMemory && c.Credentials.Backend != BackendBolt {
		return fmt.Errorf("%w: credentials.backend must be %q or %q, got %q", ErrInvalidConfig, BackendMemory, BackendBolt, c.Credentials.Backend)
	}
	defaultDuration(&c.Credentials.PendingTTL, def.Credentials.PendingTTL)
	defaultDuration(&c.Credentials.SweepInterval, def.Credentials.SweepInterval)

	if c.Session == nil {
		c.Session = def.Session
	}
	defaultDuration(&c.Session.IdleTimeout, def.Session.IdleTimeout)

	if c.Upstream == nil {
		c.Upstream = def.Upstream
	}
	defaultDuration(&c.Upstream.Timeout, def.Upstream.Timeout)
	if c.Upstream.GitHubAPIURL == "" {
		c.Upstream.GitHubAPIURL = def.Upstream.GitHubAPIURL
	}
	if c.Upstream.ClickUpAPIURL == "" {
		c.Upstream.ClickUpAPIURL = def.Upstream.ClickUpAPIURL
	}

	c.ClaimRateLimit = defaultRateLimit(c.ClaimRateLimit, def.ClaimRateLimit)
	c.LoginRateLimit = defaultRateLimit(c.LoginRateLimit, def.LoginRateLimit)

	if c.Logging == nil {
		c.Logging = def.Logging
	}
	if c.Observability == nil {
		c.Observability = def.Observability
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = def.Observability.ServiceName
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("%w: observability.sample_rate must be within [0,1]", ErrInvalidConfig)
	}

	return nil
}

func defaultDuration(d *Duration, fallback Duration) {
	if *d <= 0 {
		*d = fallback
	}
}

func baseURLFromListen(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

// GitHubRedirectURL is the callback registered with the GitHub OAuth app.
func (c *Config) GitHubRedirectURL() string {
	return c.PublicBaseURL + c.GitHub.CallbackPath
}

// ClickUpRedirectURL is the callback registered with the ClickUp OAuth app.
func (c *Config) ClickUpRedirectURL() string {
	return c.PublicBaseURL + c.ClickUp.CallbackPath
}

// GitHubConfigured reports whether GitHub login can be offered.
func (c *Config) GitHubConfigured() bool {
	if c.GitHub.ClientID == "" {
		return false
	}
	// The device flow does not need the client secret.
	return c.GitHub.Flow == FlowDevice || c.GitHub.ClientSecret != ""
}

func (c *Config) ClickUpConfigured() bool {
	return c.ClickUp.ClientID != "" && c.ClickUp.ClientSecret != ""
}

// PendingTTL is shorthand used by the credential store wiring.
func (c *Config) PendingTTL() time.Duration { return c.Credentials.PendingTTL.Std() }

func defaultRateLimit(rl, def *RateLimitConfig) *RateLimitConfig {
	if rl == nil {
		return def
	}
	if rl.RPS <= 0 {
		rl.RPS = def.RPS
	}
	if rl.Burst <= 0 {
		rl.Burst = def.Burst
	}
	return rl
}
