package config

// Config is the top-level configuration
type Config struct {
	Workspace string          `json:"workspace"`
	Log       LogConfig       `json:"log"`
	Engine    EngineConfig    `json:"engine"`
	Channels  ChannelsConfig  `json:"channels"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Sessions  SessionsConfig  `json:"sessions"`
	Quota     QuotaConfig     `json:"quota"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// EngineConfig selects and configures the conversational engine backend.
type EngineConfig struct {
	Provider  string `json:"provider"` // "openai" or "anthropic"
	Model     string `json:"model"`
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl"`
	MaxTokens int    `json:"maxTokens"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

type DiscordConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

type TelegramConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

type SlackConfig struct {
	BotToken     string   `json:"botToken"`
	AppToken     string   `json:"appToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

type SchedulerConfig struct {
	// Timezone applied to natural-language time phrases that do not carry one.
	Timezone string `json:"timezone"`
}

type SessionsConfig struct {
	DBPath           string `json:"dbPath"`
	ArchiveAfterDays int    `json:"archiveAfterDays"`
	SweepInterval    string `json:"sweepInterval"` // Go duration string, e.g. "24h"
}

type QuotaConfig struct {
	BaseURL  string `json:"baseUrl"`
	APIKey   string `json:"apiKey"`
	FailOpen bool   `json:"failOpen"` // permit execution when the authority is unreachable
}

// DefaultConfig returns a Config with sane defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.steward",
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Engine: EngineConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Scheduler: SchedulerConfig{
			Timezone: "UTC",
		},
		Sessions: SessionsConfig{
			ArchiveAfterDays: 30,
			SweepInterval:    "24h",
		},
		Quota: QuotaConfig{
			FailOpen: true,
		},
	}
}
