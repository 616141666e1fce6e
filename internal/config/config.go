package config

import "time"

const (
	defaultListen      = ":3000"
	defaultFrontendURL = "http://localhost:5173"

	FlowRedirect = "redirect"
	FlowDevice   = "device"

	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Config represents the main configuration structure
type Config struct {
	Listen        string `json:"listen" mapstructure:"listen"`
	DataDir       string `json:"data_dir" mapstructure:"data-dir"`
	FrontendURL   string `json:"frontend_url" mapstructure:"frontend-url"`
	PublicBaseURL string `json:"public_base_url" mapstructure:"public-base-url"`

	GitHub  *GitHubConfig  `json:"github,omitempty" mapstructure:"github"`
	ClickUp *ClickUpConfig `json:"clickup,omitempty" mapstructure:"clickup"`
	OAuth   *OAuthConfig   `json:"oauth,omitempty" mapstructure:"oauth"`

	Credentials    *CredentialsConfig `json:"credentials,omitempty" mapstructure:"credentials"`
	Session        *SessionConfig     `json:"session,omitempty" mapstructure:"session"`
	Upstream       *UpstreamConfig    `json:"upstream,omitempty" mapstructure:"upstream"`
	ClaimRateLimit *RateLimitConfig   `json:"claim_rate_limit,omitempty" mapstructure:"claim-rate-limit"`
	LoginRateLimit *RateLimitConfig   `json:"login_rate_limit,omitempty" mapstructure:"login-rate-limit"`

	Logging       *LogConfig           `json:"logging,omitempty" mapstructure:"logging"`
	Observability *ObservabilityConfig `json:"observability,omitempty" mapstructure:"observability"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`       // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"` // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`         // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// GitHubConfig holds the OAuth app registration for GitHub.
type GitHubConfig struct {
	ClientID     string   `json:"client_id" mapstructure:"client-id"`
	ClientSecret string   `json:"client_secret" mapstructure:"client-secret"`
	Scopes       []string `json:"scopes,omitempty" mapstructure:"scopes"`
	// Flow is "redirect" (authorization code) or "device" (device code polling).
	Flow         string `json:"flow" mapstructure:"flow"`
	CallbackPath string `json:"callback_path" mapstructure:"callback-path"`
}

// ClickUpConfig holds the OAuth app registration for ClickUp.
type ClickUpConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client-id"`
	ClientSecret string `json:"client_secret" mapstructure:"client-secret"`
	CallbackPath string `json:"callback_path" mapstructure:"callback-path"`
}

// OAuthConfig controls the signed state parameter used by the redirect flows.
type OAuthConfig struct {
	StateSecret string   `json:"state_secret,omitempty" mapstructure:"state-secret"`
	StateTTL    Duration `json:"state_ttl" mapstructure:"state-ttl"`
}

// CredentialsConfig selects the pending table backend and its expiry.
type CredentialsConfig struct {
	Backend       string   `json:"backend" mapstructure:"backend"`
	PendingTTL    Duration `json:"pending_ttl" mapstructure:"pending-ttl"`
	SweepInterval Duration `json:"sweep_interval" mapstructure:"sweep-interval"`
}

type SessionConfig struct {
	IdleTimeout Duration `json:"idle_timeout" mapstructure:"idle-timeout"`
}

// UpstreamConfig applies to every outbound REST call.
type UpstreamConfig struct {
	Timeout       Duration `json:"timeout" mapstructure:"timeout"`
	GitHubAPIURL  string   `json:"github_api_url" mapstructure:"github-api-url"`
	ClickUpAPIURL string   `json:"clickup_api_url" mapstructure:"clickup-api-url"`
}

// RateLimitConfig is a token bucket applied per client address.
type RateLimitConfig struct {
	RPS   float64 `json:"rps" mapstructure:"rps"`
	Burst int     `json:"burst" mapstructure:"burst"`
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool    `json:"metrics_enabled" mapstructure:"metrics-enabled"`
	TracingEnabled bool    `json:"tracing_enabled" mapstructure:"tracing-enabled"`
	ServiceName    string  `json:"service_name" mapstructure:"service-name"`
	OTLPEndpoint   string  `json:"otlp_endpoint,omitempty" mapstructure:"otlp-endpoint"`
	SampleRate     float64 `json:"sample_rate" mapstructure:"sample-rate"`
}

// DefaultConfig returns a configuration with every section populated.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		FrontendURL: defaultFrontendURL,
		GitHub: &GitHubConfig{
			Scopes:       []string{"repo", "user:email"},
			Flow:         FlowRedirect,
			CallbackPath: "/github/callback",
		},
		ClickUp: &ClickUpConfig{
			CallbackPath: "/clickup/callback",
		},
		OAuth: &OAuthConfig{
			StateTTL: Duration(10 * time.Minute),
		},
		Credentials: &CredentialsConfig{
			Backend:       BackendMemory,
			PendingTTL:    Duration(10 * time.Minute),
			SweepInterval: Duration(time.Minute),
		},
		Session: &SessionConfig{
			IdleTimeout: Duration(30 * time.Minute),
		},
		Upstream: &UpstreamConfig{
			Timeout:       Duration(15 * time.Second),
			GitHubAPIURL:  "https://api.github.com",
			ClickUpAPIURL: "https://api.clickup.com/api/v2",
		},
		ClaimRateLimit: &RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		LoginRateLimit: &RateLimitConfig{
			RPS:   1,
			Burst: 20,
		},
		Logging: &LogConfig{
			Level:         "info",
			EnableConsole: true,
			Filename:      "devbridge.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
		Observability: &ObservabilityConfig{
			MetricsEnabled: true,
			ServiceName:    "devbridge",
			SampleRate:     1.0,
		},
	}
}

// Redacted returns a deep enough copy of c with every secret masked, for display.
func (c *Config) Redacted(mask func(string) string) *Config {
	out := *c
	if c.GitHub != nil {
		gh := *c.GitHub
		gh.ClientSecret = maskUnlessRef(gh.ClientSecret, mask)
		out.GitHub = &gh
	}
	if c.ClickUp != nil {
		cu := *c.ClickUp
		cu.ClientSecret = maskUnlessRef(cu.ClientSecret, mask)
		out.ClickUp = &cu
	}
	if c.OAuth != nil {
		o := *c.OAuth
		o.StateSecret = maskUnlessRef(o.StateSecret, mask)
		out.OAuth = &o
	}
	return &out
}

func maskUnlessRef(v string, mask func(string) string) string {
	if len(v) > 3 && v[0] == '$' && v[1] == '{' {
		return v
	}
	return mask(v)
}
