package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TokenEnvVar is read when discord.token is empty.
const TokenEnvVar = "DISCORD_TOKEN"

// ConfigDirEnvVar overrides the user and system config locations.
const ConfigDirEnvVar = "MATHBOT_CONFIG_DIR"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfig is returned by DiscoverConfigPath when no file exists in any
// standard location.
var ErrNoConfig = errors.New("no config file found")

// Load reads and parses configuration from a file. A directory is taken to
// contain config.yaml. An empty path yields the defaults with environment
// overrides.
//
// A .env file next to the config (and one in the working directory) is loaded
// first; variables already set in the environment win. When the config
// directory holds a .checksums manifest, every file listed in it is verified
// before parsing.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath == "" {
		loadDotEnv("")
		applyEnvFallbacks(cfg)
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	absPath, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	configDir := filepath.Dir(absPath)

	if err := verifyConfigHashes(configDir); err != nil {
		return nil, err
	}
	loadDotEnv(configDir)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep their default and
	// explicit zero values (e.g. render.timeout: 0) are honoured.
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", absPath, err)
	}
	cfg.Path = absPath

	applyEnvFallbacks(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: explicit path, $MATHBOT_CONFIG_DIR, ~/.config/mathbot,
// /etc/mathbot, ./config.yaml. It returns ErrNoConfig when none exists.
func DiscoverConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	candidates := make([]string, 0, 4)
	if dir := os.Getenv(ConfigDirEnvVar); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "mathbot", "config.yaml"))
	}
	candidates = append(candidates, "/etc/mathbot/config.yaml", "config.yaml")

	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (checked: $%s, ~/.config/mathbot, /etc/mathbot, ./config.yaml)", ErrNoConfig, ConfigDirEnvVar)
}

// LoadDiscovered discovers the config file and loads it, falling back to the
// defaults when no file exists anywhere.
func LoadDiscovered(explicit string) (*Config, error) {
	path, err := DiscoverConfigPath(explicit)
	if err != nil && !errors.Is(err, ErrNoConfig) {
		return nil, err
	}
	return Load(path)
}

func resolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if !fileExists(absPath) {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// loadDotEnv loads <configDir>/.env and ./.env without overriding variables
// that are already set. Missing files are ignored.
func loadDotEnv(configDir string) {
	paths := []string{".env"}
	if configDir != "" {
		paths = append([]string{filepath.Join(configDir, ".env")}, paths...)
	}
	for _, p := range paths {
		if fileExists(p) {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv(TokenEnvVar)
	}
}

// interpolateEnv replaces ${VAR} with its value. Unset variables are left in
// place and rejected by validate where they matter.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if err := unresolved("discord.token", cfg.Discord.Token); err != nil {
		return err
	}
	if strings.ContainsAny(cfg.Discord.Prefix, " \t\n") {
		return fmt.Errorf("discord.prefix must not contain whitespace")
	}

	if strings.TrimSpace(cfg.Render.Engine) == "" {
		return fmt.Errorf("render.engine is required")
	}
	if cfg.Render.WorkspaceDir == "" {
		return fmt.Errorf("render.workspace_dir is required")
	}
	if cfg.Render.Timeout < 0 {
		return fmt.Errorf("render.timeout must not be negative")
	}
	if cfg.Render.KillGrace <= 0 {
		return fmt.Errorf("render.kill_grace must be positive")
	}
	if cfg.Render.JanitorInterval < 0 || cfg.Render.StaleAfter < 0 {
		return fmt.Errorf("render.janitor_interval and render.stale_after must not be negative")
	}

	u, err := url.Parse(cfg.Stats.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("stats.base_url must be an http(s) URL (got %q)", cfg.Stats.BaseURL)
	}
	if cfg.Stats.Timeout <= 0 {
		return fmt.Errorf("stats.timeout must be positive")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if err := unresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if strings.TrimSpace(tok.Token) == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is empty", i)
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes is empty", i)
			}
		}
		if strings.TrimSpace(cfg.API.Auth.APIKey) == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth.api_key or api.auth.tokens is required when api.enabled is true")
		}
	}

	return nil
}

func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
