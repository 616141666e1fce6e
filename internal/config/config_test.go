package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, "http://localhost:5173", cfg.FrontendURL)
	assert.Equal(t, FlowRedirect, cfg.GitHub.Flow)
	assert.Equal(t, []string{"repo", "user:email"}, cfg.GitHub.Scopes)
	assert.Equal(t, BackendMemory, cfg.Credentials.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Credentials.PendingTTL.Std())
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout.Std())
	assert.True(t, cfg.Logging.EnableConsole)
	assert.False(t, cfg.Logging.EnableFile)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name:   "public base url derived from listen port",
			mutate: func(c *Config) { c.Listen = ":8081" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "http://localhost:8081", c.PublicBaseURL)
				assert.Equal(t, "http://localhost:8081/github/callback", c.GitHubRedirectURL())
				assert.Equal(t, "http://localhost:8081/clickup/callback", c.ClickUpRedirectURL())
			},
		},
		{
			name:   "public base url derived from host listen",
			mutate: func(c *Config) { c.Listen = "0.0.0.0:9000" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "http://0.0.0.0:9000", c.PublicBaseURL)
			},
		},
		{
			name: "nil sections are filled",
			mutate: func(c *Config) {
				c.GitHub = nil
				c.Credentials = nil
				c.Upstream = nil
			},
			check: func(t *testing.T, c *Config) {
				require.NotNil(t, c.GitHub)
				assert.Equal(t, FlowRedirect, c.GitHub.Flow)
				assert.Equal(t, BackendMemory, c.Credentials.Backend)
				assert.Equal(t, 15*time.Second, c.Upstream.Timeout.Std())
			},
		},
		{
			name:   "zero durations fall back",
			mutate: func(c *Config) { c.Credentials.PendingTTL = 0; c.Session.IdleTimeout = -1 },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 10*time.Minute, c.PendingTTL())
				assert.Equal(t, 30*time.Minute, c.Session.IdleTimeout.Std())
			},
		},
		{
			name: "rate limits fall back",
			mutate: func(c *Config) {
				c.LoginRateLimit = nil
				c.ClaimRateLimit = &RateLimitConfig{RPS: 2}
			},
			check: func(t *testing.T, c *Config) {
				require.NotNil(t, c.LoginRateLimit)
				assert.Equal(t, 20, c.LoginRateLimit.Burst)
				assert.Equal(t, 2.0, c.ClaimRateLimit.RPS)
				assert.Equal(t, 10, c.ClaimRateLimit.Burst)
			},
		},
		{
			name:    "unknown flow rejected",
			mutate:  func(c *Config) { c.GitHub.Flow = "implicit" },
			wantErr: true,
		},
		{
			name:    "unknown backend rejected",
			mutate:  func(c *Config) { c.Credentials.Backend = "redis" },
			wantErr: true,
		},
		{
			name:    "relative frontend url rejected",
			mutate:  func(c *Config) { c.FrontendURL = "/app" },
			wantErr: true,
		},
		{
			name:   "trailing slashes trimmed",
			mutate: func(c *Config) { c.FrontendURL = "https://app.example.com/" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "https://app.example.com", c.FrontendURL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfiguredProviders(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.GitHubConfigured())
	assert.False(t, cfg.ClickUpConfigured())

	cfg.GitHub.ClientID = "id"
	assert.False(t, cfg.GitHubConfigured(), "redirect flow needs a secret")
	cfg.GitHub.Flow = FlowDevice
	assert.True(t, cfg.GitHubConfigured())

	cfg.ClickUp.ClientID = "id"
	cfg.ClickUp.ClientSecret = "secret"
	assert.True(t, cfg.ClickUpConfigured())
}

func TestDurationJSON(t *testing.T) {
	var c CredentialsConfig
	require.NoError(t, json.Unmarshal([]byte(`{"pending_ttl":"90s","sweep_interval":30}`), &c))
	assert.Equal(t, 90*time.Second, c.PendingTTL.Std())
	assert.Equal(t, 30*time.Second, c.SweepInterval.Std())

	out, err := json.Marshal(Duration(5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"5m0s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"pending_ttl":"soon"}`), &c))
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GitHub.ClientSecret = "plain-github-secret"
	cfg.ClickUp.ClientSecret = "${keyring:clickup}"
	mask := func(string) string { return "****" }

	red := cfg.Redacted(mask)
	assert.Equal(t, "****", red.GitHub.ClientSecret)
	assert.Equal(t, "${keyring:clickup}", red.ClickUp.ClientSecret)
	assert.Equal(t, "plain-github-secret", cfg.GitHub.ClientSecret, "original untouched")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	fileCfg := map[string]interface{}{
		"listen":   ":4000",
		"data_dir": filepath.Join(dir, "data"),
		"github": map[string]interface{}{
			"client_id":     "file-id",
			"client_secret": "file-secret",
			"flow":          "redirect",
		},
		"credentials": map[string]interface{}{
			"backend":     "bolt",
			"pending_ttl": "2m",
		},
	}
	data, err := json.Marshal(fileCfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	t.Run("file values", func(t *testing.T) {
		v := NewViper()
		v.Set("config", path)
		cfg, err := load(v, noEnv)
		require.NoError(t, err)
		assert.Equal(t, ":4000", cfg.Listen)
		assert.Equal(t, "file-id", cfg.GitHub.ClientID)
		assert.Equal(t, BackendBolt, cfg.Credentials.Backend)
		assert.Equal(t, 2*time.Minute, cfg.PendingTTL())
		assert.DirExists(t, cfg.DataDir)
	})

	t.Run("legacy env beats file, flags beat legacy env", func(t *testing.T) {
		env := map[string]string{
			"GITHUB_CLIENT_ID":      "env-id",
			"CLICKUP_CLIENT_SECRET": "env-cu-secret",
			"PORT":                  "3100",
		}
		lookup := func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}
		v := NewViper()
		v.Set("config", path)
		v.Set("github.client-id", "flag-id")
		v.Set("upstream.timeout", "3s")

		cfg, err := load(v, lookup)
		require.NoError(t, err)
		assert.Equal(t, "flag-id", cfg.GitHub.ClientID)
		assert.Equal(t, "env-cu-secret", cfg.ClickUp.ClientSecret)
		assert.Equal(t, ":3100", cfg.Listen)
		assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout.Std())
	})

	t.Run("empty file means defaults", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(empty, nil, 0600))
		v := NewViper()
		v.Set("config", empty)
		v.Set("data-dir", filepath.Join(dir, "d2"))
		cfg, err := load(v, noEnv)
		require.NoError(t, err)
		assert.Equal(t, ":3000", cfg.Listen)
	})

	t.Run("broken file", func(t *testing.T) {
		broken := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(broken, []byte("{"), 0600))
		v := NewViper()
		v.Set("config", broken)
		_, err := load(v, noEnv)
		assert.Error(t, err)
	})
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	cfg := DefaultConfig()
	cfg.Listen = ":7000"
	require.NoError(t, SaveConfig(cfg, path))

	loaded := DefaultConfig()
	require.NoError(t, loadConfigFile(path, loaded))
	assert.Equal(t, ":7000", loaded.Listen)
	assert.Equal(t, cfg.Credentials.PendingTTL, loaded.Credentials.PendingTTL)
}
