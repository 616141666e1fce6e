package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultDataDir = ".devbridge"
	ConfigFileName = "devbridge_config.json"
	EnvPrefix      = "DEVBRIDGE"
)

// NewViper returns a viper instance wired for DEVBRIDGE_* environment
// overrides. Flag sets are bound onto it by the CLI.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("config", "")
	return v
}

// Load reads the config file (explicit path, or the first one found in the
// usual locations), then applies legacy environment variables, then
// DEVBRIDGE_* variables and flags from v, and finally validates.
func Load(v *viper.Viper) (*Config, error) {
	return load(v, os.LookupEnv)
}

func load(v *viper.Viper, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path := v.GetString("config"); path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if _, err := findAndLoadConfigFile(cfg); err != nil {
		return nil, err
	}

	applyLegacyEnv(cfg, lookupEnv)
	applyOverrides(v, cfg)

	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findAndLoadConfigFile tries the working directory, then the data directory
// under $HOME. A missing file is not an error.
func findAndLoadConfigFile(cfg *Config) (string, error) {
	locations := []string{ConfigFileName}
	if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, DefaultDataDir, ConfigFileName))
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := loadConfigFile(location, cfg); err != nil {
				return location, fmt.Errorf("failed to load config file %s: %w", location, err)
			}
			return location, nil
		}
	}
	return "", nil
}

// loadConfigFile loads configuration from a JSON file on top of cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// Empty file (including /dev/null) means defaults only.
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyLegacyEnv honors the variable names used by earlier deployments.
func applyLegacyEnv(cfg *Config, lookupEnv func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if val, ok := lookupEnv(name); ok && val != "" {
			*dst = val
		}
	}
	fillSections(cfg)
	set("GITHUB_CLIENT_ID", &cfg.GitHub.ClientID)
	set("GITHUB_CLIENT_SECRET", &cfg.GitHub.ClientSecret)
	set("CLICKUP_CLIENT_ID", &cfg.ClickUp.ClientID)
	set("CLICKUP_CLIENT_SECRET", &cfg.ClickUp.ClientSecret)
	if port, ok := lookupEnv("PORT"); ok && port != "" {
		cfg.Listen = ":" + port
	}
}

// applyOverrides copies every key explicitly set through flags or
// DEVBRIDGE_* variables onto cfg.
func applyOverrides(v *viper.Viper, cfg *Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	dur := func(key string, dst *Duration) {
		if v.IsSet(key) {
			*dst = Duration(v.GetDuration(key))
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	fillSections(cfg)

	str("listen", &cfg.Listen)
	str("data-dir", &cfg.DataDir)
	str("frontend-url", &cfg.FrontendURL)
	str("public-base-url", &cfg.PublicBaseURL)

	str("github.client-id", &cfg.GitHub.ClientID)
	str("github.client-secret", &cfg.GitHub.ClientSecret)
	str("github.flow", &cfg.GitHub.Flow)
	if v.IsSet("github.scopes") {
		cfg.GitHub.Scopes = v.GetStringSlice("github.scopes")
	}
	str("clickup.client-id", &cfg.ClickUp.ClientID)
	str("clickup.client-secret", &cfg.ClickUp.ClientSecret)

	str("oauth.state-secret", &cfg.OAuth.StateSecret)
	dur("oauth.state-ttl", &cfg.OAuth.StateTTL)

	str("credentials.backend", &cfg.Credentials.Backend)
	dur("credentials.pending-ttl", &cfg.Credentials.PendingTTL)
	dur("credentials.sweep-interval", &cfg.Credentials.SweepInterval)
	dur("session.idle-timeout", &cfg.Session.IdleTimeout)
	dur("upstream.timeout", &cfg.Upstream.Timeout)

	str("log-level", &cfg.Logging.Level)
	boolean("log-to-file", &cfg.Logging.EnableFile)
	str("log-dir", &cfg.Logging.LogDir)

	boolean("observability.metrics-enabled", &cfg.Observability.MetricsEnabled)
	boolean("observability.tracing-enabled", &cfg.Observability.TracingEnabled)
	str("observability.otlp-endpoint", &cfg.Observability.OTLPEndpoint)
}

// fillSections replaces sections a config file set to null, so overrides
// have somewhere to land.
func fillSections(cfg *Config) {
	def := DefaultConfig()
	if cfg.GitHub == nil {
		cfg.GitHub = def.GitHub
	}
	if cfg.ClickUp == nil {
		cfg.ClickUp = def.ClickUp
	}
	if cfg.OAuth == nil {
		cfg.OAuth = def.OAuth
	}
	if cfg.Credentials == nil {
		cfg.Credentials = def.Credentials
	}
	if cfg.Session == nil {
		cfg.Session = def.Session
	}
	if cfg.Upstream == nil {
		cfg.Upstream = def.Upstream
	}
	if cfg.Logging == nil {
		cfg.Logging = def.Logging
	}
	if cfg.Observability == nil {
		cfg.Observability = def.Observability
	}
}

// SaveConfig writes cfg as indented JSON, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
