// Package doctor validates a mathbot configuration against the host it is
// about to run on.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/mathbot/internal/auth"
	"github.com/mattjoyce/mathbot/internal/config"
	"github.com/mattjoyce/mathbot/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var knownScopes = map[string]bool{
	auth.ScopeAll:          true,
	auth.ScopeCommandsRead: true,
	auth.ScopeCommandsRun:  true,
	auth.ScopeHistoryRead:  true,
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg       *config.Config
	lookPath  func(string) (string, error)
	inspectFS func(string) (storage.Filesystem, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, inspectFS: storage.InspectFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateDiscord(r)
	d.validateEngine(r)
	d.validateWorkspaces(r)
	d.validateHistory(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnUnlockedConfig(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateDiscord(r *Result) {
	token := d.cfg.Discord.Token
	switch {
	case strings.TrimSpace(token) == "":
		d.addError(r, "discord", "discord.token",
			fmt.Sprintf("no bot token configured (set discord.token or $%s)", config.TokenEnvVar))
	case strings.HasPrefix(token, "Bot "):
		d.addWarning(r, "discord", "discord.token", "token includes the \"Bot \" prefix; it is added automatically")
	case strings.TrimSpace(token) != token:
		d.addWarning(r, "discord", "discord.token", "token has leading or trailing whitespace")
	}

	if d.cfg.Discord.Prefix != "" {
		d.addWarning(r, "discord", "discord.prefix",
			"prefix commands need the privileged Message Content intent enabled for the application")
	}
	if !d.cfg.Discord.RegisterCommands {
		d.addWarning(r, "discord", "discord.register_commands",
			"slash commands will not be registered; existing registrations may be stale")
	}
}

func (d *Doctor) validateEngine(r *Result) {
	path, err := d.lookPath(d.cfg.Render.Engine)
	if err != nil {
		d.addError(r, "render", "render.engine",
			fmt.Sprintf("engine %q not found: %v", d.cfg.Render.Engine, err))
		return
	}
	if path != d.cfg.Render.Engine {
		d.addWarning(r, "render", "render.engine", fmt.Sprintf("engine resolves to %s", path))
	}

	if d.cfg.Render.Timeout == 0 {
		d.addWarning(r, "render", "render.timeout", "timeout disabled; a hung engine will never be killed")
	}
}

func (d *Doctor) validateWorkspaces(r *Result) {
	dir := d.cfg.Render.WorkspaceDir
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		d.addError(r, "render", "render.workspace_dir", fmt.Sprintf("%s exists and is not a directory", dir))
	case err == nil && info.Mode().Perm()&0o077 != 0:
		d.addWarning(r, "render", "render.workspace_dir",
			fmt.Sprintf("%s is accessible to other users (mode %v)", dir, info.Mode().Perm()))
	case err != nil && !errors.Is(err, os.ErrNotExist):
		d.addError(r, "render", "render.workspace_dir", fmt.Sprintf("cannot stat %s: %v", dir, err))
	}

	if fs, err := d.inspectFS(dir); err != nil {
		d.addWarning(r, "render", "render.workspace_dir", fmt.Sprintf("cannot determine filesystem: %v", err))
	} else if fs.Network() || fs.Volatile() {
		d.addWarning(r, "render", "render.workspace_dir",
			fmt.Sprintf("%s is on %s; workspaces belong on durable local storage", fs.Path, fs.Type))
	}

	rc := d.cfg.Render
	if rc.JanitorInterval == 0 || rc.StaleAfter == 0 {
		d.addWarning(r, "render", "render.janitor_interval", "workspace janitor disabled; crashed renders leave directories behind")
		return
	}
	if rc.Timeout > 0 && rc.StaleAfter <= rc.Timeout+rc.KillGrace {
		d.addWarning(r, "render", "render.stale_after",
			fmt.Sprintf("stale_after (%s) does not exceed timeout plus kill_grace; the janitor may remove live workspaces", rc.StaleAfter))
	}
}

func (d *Doctor) validateHistory(r *Result) {
	path := d.cfg.History.Path
	if path == "" {
		return
	}
	if _, err := os.Stat(filepath.Dir(path)); errors.Is(err, os.ErrNotExist) {
		d.addWarning(r, "history", "history.path", fmt.Sprintf("directory %s will be created", filepath.Dir(path)))
	}
	if fs, err := d.inspectFS(path); err == nil && fs.Network() {
		d.addError(r, "history", "history.path",
			fmt.Sprintf("%s is on network filesystem %s; SQLite needs a local filesystem", fs.Path, fs.Type))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addError(r, "api", "api.auth", "API enabled but no authentication configured")
	}

	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addWarning(r, "api", "api.listen", "API listens on a non-loopback address")
	}
}

// validateTokenScopes checks that every scope is one the API understands.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if !knownScopes[strings.TrimSpace(scope)] {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected one of *, commands:ro, commands:rw, history:ro)", scope))
			}
		}
	}
}

func (d *Doctor) warnUnlockedConfig(r *Result) {
	if d.cfg.Path == "" {
		d.addWarning(r, "config", "", "no config file found; running on defaults and environment")
		return
	}
	manifest, err := config.LoadChecksums(filepath.Dir(d.cfg.Path))
	if errors.Is(err, config.ErrNoChecksums) {
		d.addWarning(r, "config", "", "config is not locked; run 'mathbot config lock' to enable integrity verification")
		return
	}
	if err != nil {
		d.addError(r, "config", "", err.Error())
		return
	}
	if len(manifest.ManifestFiles()) == 0 {
		d.addWarning(r, "config", "", ".checksums lists no files")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
	} else {
		fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
