package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete mathbot configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Discord DiscordConfig `yaml:"discord"`
	Render  RenderConfig  `yaml:"render"`
	Stats   StatsConfig   `yaml:"stats"`
	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api,omitempty"`

	// Path is the file this config was loaded from, empty for built-in
	// defaults.
	Path string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file"`
}

// DiscordConfig defines the gateway connection.
type DiscordConfig struct {
	// Token falls back to $DISCORD_TOKEN when empty.
	Token string `yaml:"token"`
	// GuildID registers commands to one guild instead of globally.
	GuildID string `yaml:"guild_id,omitempty"`
	// Prefix enables text commands such as "~math x^2". Empty disables them.
	Prefix           string `yaml:"prefix,omitempty"`
	RegisterCommands bool   `yaml:"register_commands"`
}

// RenderConfig defines the typst engine and its scratch workspaces.
type RenderConfig struct {
	Engine       string        `yaml:"engine"`
	WorkspaceDir string        `yaml:"workspace_dir"`
	Timeout      time.Duration `yaml:"timeout"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	// JanitorInterval and StaleAfter control the sweep of workspaces left
	// behind by a crashed process. Zero disables the sweep.
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
}

// StatsConfig defines the Overwatch stats API.
type StatsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig defines the invocation history log.
type HistoryConfig struct {
	// Path is the SQLite file. Empty disables the history log.
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ChecksumManifest is the content of a .checksums file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with the values used when a key is absent.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "mathbot",
			LogLevel:  "info",
			LogFormat: "json",
			PIDFile:   filepath.Join(os.TempDir(), "mathbot", "mathbot.pid"),
		},
		Discord: DiscordConfig{
			RegisterCommands: true,
		},
		Render: RenderConfig{
			Engine:          "typst",
			WorkspaceDir:    filepath.Join(os.TempDir(), "mathbot", "workspaces"),
			Timeout:         30 * time.Second,
			KillGrace:       5 * time.Second,
			JanitorInterval: 10 * time.Minute,
			StaleAfter:      time.Hour,
		},
		Stats: StatsConfig{
			BaseURL: "https://overfast-api.tekrop.fr",
			Timeout: 10 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
