package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal config keeps defaults",
			yaml: `
discord:
  token: abc
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Discord.Token != "abc" {
					t.Errorf("discord.token = %q", cfg.Discord.Token)
				}
				if !cfg.Discord.RegisterCommands {
					t.Error("register_commands default not kept")
				}
				if cfg.Render.Engine != "typst" {
					t.Errorf("render.engine = %q, want typst", cfg.Render.Engine)
				}
				if cfg.Render.Timeout != 30*time.Second {
					t.Errorf("render.timeout = %v, want 30s", cfg.Render.Timeout)
				}
				if cfg.Stats.BaseURL != "https://overfast-api.tekrop.fr" {
					t.Errorf("stats.base_url = %q", cfg.Stats.BaseURL)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: mathbot-test
  log_level: debug
  log_format: text
  pid_file: /tmp/mb.pid
discord:
  token: abc
  guild_id: "123"
  prefix: "~"
  register_commands: false
render:
  engine: /usr/local/bin/typst
  workspace_dir: /var/tmp/mb
  timeout: 0s
  kill_grace: 2s
  janitor_interval: 1m
  stale_after: 5m
stats:
  base_url: http://localhost:9000
  timeout: 3s
history:
  path: ./history.db
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogFormat != "text" || cfg.Service.LogLevel != "debug" {
					t.Errorf("service not parsed: %+v", cfg.Service)
				}
				if cfg.Discord.RegisterCommands {
					t.Error("register_commands: false not honoured")
				}
				if cfg.Discord.Prefix != "~" || cfg.Discord.GuildID != "123" {
					t.Errorf("discord not parsed: %+v", cfg.Discord)
				}
				if cfg.Render.Timeout != 0 {
					t.Errorf("render.timeout = %v, want 0 (disabled)", cfg.Render.Timeout)
				}
				if cfg.Render.KillGrace != 2*time.Second || cfg.Render.StaleAfter != 5*time.Minute {
					t.Errorf("render durations not parsed: %+v", cfg.Render)
				}
				if cfg.History.Path != "./history.db" {
					t.Errorf("history.path = %q", cfg.History.Path)
				}
			},
		},
		{
			name: "environment interpolation",
			yaml: `
discord:
  token: ${MATHBOT_TEST_TOKEN}
api:
  enabled: true
  auth:
    tokens:
      - token: ${MATHBOT_TEST_API_TOKEN}
        scopes: ["commands:rw"]
`,
			env: map[string]string{"MATHBOT_TEST_TOKEN": "from-env", "MATHBOT_TEST_API_TOKEN": "api-secret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Discord.Token != "from-env" {
					t.Errorf("discord.token = %q, want from-env", cfg.Discord.Token)
				}
				if cfg.API.Auth.Tokens[0].Token != "api-secret" {
					t.Errorf("api token = %q", cfg.API.Auth.Tokens[0].Token)
				}
			},
		},
		{
			name: "token falls back to DISCORD_TOKEN",
			yaml: "service:\n  name: x\n",
			env:  map[string]string{"DISCORD_TOKEN": "fallback"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Discord.Token != "fallback" {
					t.Errorf("discord.token = %q, want fallback", cfg.Discord.Token)
				}
			},
		},
		{
			name:    "unresolved token variable",
			yaml:    "discord:\n  token: ${MATHBOT_TEST_UNSET}\n",
			wantErr: "${MATHBOT_TEST_UNSET} is not set",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad log format",
			yaml:    "service:\n  log_format: xml\n",
			wantErr: "service.log_format",
		},
		{
			name:    "negative timeout",
			yaml:    "render:\n  timeout: -1s\n",
			wantErr: "render.timeout",
		},
		{
			name:    "empty engine",
			yaml:    "render:\n  engine: \"\"\n",
			wantErr: "render.engine",
		},
		{
			name:    "bad stats url",
			yaml:    "stats:\n  base_url: ftp://example.com\n",
			wantErr: "stats.base_url",
		},
		{
			name:    "prefix with whitespace",
			yaml:    "discord:\n  prefix: \"! \"\n",
			wantErr: "discord.prefix",
		},
		{
			name:    "api without credentials",
			yaml:    "api:\n  enabled: true\n",
			wantErr: "api.auth.api_key or api.auth.tokens",
		},
		{
			name: "api token without scopes",
			yaml: `
api:
  enabled: true
  auth:
    tokens:
      - token: abc
`,
			wantErr: "scopes is empty",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(TokenEnvVar, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := writeConfig(t, t.TempDir(), tt.yaml)
			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() error = nil, want %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Path != path {
				t.Errorf("cfg.Path = %q, want %q", cfg.Path, path)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	t.Setenv(TokenEnvVar, "")
	dir := t.TempDir()
	writeConfig(t, dir, "discord:\n  token: dir-token\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.Discord.Token != "dir-token" {
		t.Errorf("discord.token = %q", cfg.Discord.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Setenv(TokenEnvVar, "env-only")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("cfg.Path = %q, want empty", cfg.Path)
	}
	if cfg.Discord.Token != "env-only" {
		t.Errorf("discord.token = %q, want env-only", cfg.Discord.Token)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "MATHBOT_TEST_DOTENV_TOKEN"
	t.Setenv(key, "")
	os.Unsetenv(key)
	t.Setenv(TokenEnvVar, "")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=dotenv-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, "discord:\n  token: ${"+key+"}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discord.Token != "dotenv-secret" {
		t.Errorf("discord.token = %q, want dotenv-secret", cfg.Discord.Token)
	}
}

func TestDiscoverConfigPath(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		got, err := DiscoverConfigPath("/some/where.yaml")
		if err != nil || got != "/some/where.yaml" {
			t.Fatalf("DiscoverConfigPath() = %q, %v", got, err)
		}
	})

	t.Run("env dir", func(t *testing.T) {
		dir := t.TempDir()
		want := writeConfig(t, dir, "")
		t.Setenv(ConfigDirEnvVar, dir)

		got, err := DiscoverConfigPath("")
		if err != nil {
			t.Fatalf("DiscoverConfigPath() error = %v", err)
		}
		if got != want {
			t.Errorf("DiscoverConfigPath() = %q, want %q", got, want)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv(ConfigDirEnvVar, filepath.Join(t.TempDir(), "missing"))
		t.Setenv("HOME", t.TempDir())
		t.Chdir(t.TempDir())
		if fileExists("/etc/mathbot/config.yaml") {
			t.Skip("system config present")
		}

		_, err := DiscoverConfigPath("")
		if !errors.Is(err, ErrNoConfig) {
			t.Fatalf("DiscoverConfigPath() error = %v, want ErrNoConfig", err)
		}

		t.Setenv(TokenEnvVar, "")
		cfg, err := LoadDiscovered("")
		if err != nil {
			t.Fatalf("LoadDiscovered() error = %v", err)
		}
		if cfg.Path != "" {
			t.Errorf("cfg.Path = %q, want defaults", cfg.Path)
		}
	})
}
