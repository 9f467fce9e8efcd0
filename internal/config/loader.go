package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Load loads config from the default path (~/.steward/config.json).
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromFile(filepath.Join(home, ".steward", "config.json"))
}

// LoadFromFile loads config from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader loads config from an io.Reader, applying defaults and env overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	expandWorkspacePath(cfg)

	if cfg.Sessions.DBPath == "" {
		cfg.Sessions.DBPath = filepath.Join(cfg.Workspace, "sessions.db")
	}
	return cfg, nil
}

// SweepInterval parses the session sweep interval, falling back to def on
// an empty value.
func (c *Config) SweepInterval(def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(c.Sessions.SweepInterval)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("sessions.sweepInterval: invalid duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sessions.sweepInterval: duration must be > 0")
	}
	return d, nil
}

// applyEnvOverrides applies STEWARD_-prefixed environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]*string{
		"STEWARD_ENGINE_APIKEY":           &cfg.Engine.APIKey,
		"STEWARD_ENGINE_MODEL":            &cfg.Engine.Model,
		"STEWARD_CHANNELS_DISCORD_TOKEN":  &cfg.Channels.Discord.Token,
		"STEWARD_CHANNELS_TELEGRAM_TOKEN": &cfg.Channels.Telegram.Token,
		"STEWARD_CHANNELS_SLACK_BOTTOKEN": &cfg.Channels.Slack.BotToken,
		"STEWARD_CHANNELS_SLACK_APPTOKEN": &cfg.Channels.Slack.AppToken,
		"STEWARD_QUOTA_BASEURL":           &cfg.Quota.BaseURL,
		"STEWARD_QUOTA_APIKEY":            &cfg.Quota.APIKey,
		"STEWARD_WORKSPACE":               &cfg.Workspace,
	}

	for env, ptr := range envMap {
		if val := os.Getenv(env); val != "" {
			*ptr = val
		}
	}
}

// expandWorkspacePath expands a leading ~ in the workspace path.
func expandWorkspacePath(cfg *Config) {
	ws := cfg.Workspace
	if len(ws) >= 2 && ws[0] == '~' && ws[1] == '/' {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.Workspace = filepath.Join(home, ws[2:])
		}
	}
}
