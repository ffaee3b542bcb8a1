package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/mathbot/internal/api"
	"github.com/mattjoyce/mathbot/internal/auth"
	"github.com/mattjoyce/mathbot/internal/bot"
	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/commands"
	"github.com/mattjoyce/mathbot/internal/config"
	"github.com/mattjoyce/mathbot/internal/dispatch"
	"github.com/mattjoyce/mathbot/internal/history"
	"github.com/mattjoyce/mathbot/internal/lock"
	"github.com/mattjoyce/mathbot/internal/log"
	"github.com/mattjoyce/mathbot/internal/metrics"
	"github.com/mattjoyce/mathbot/internal/render"
	"github.com/mattjoyce/mathbot/internal/storage"
	"github.com/mattjoyce/mathbot/internal/workspace"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadDiscovered(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.Discord.Token == "" {
		fmt.Fprintf(os.Stderr, "No Discord bot token configured (set discord.token or $%s)\n", config.TokenEnvVar)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("mathbot starting", "version", version, "config", cfg.Path)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.PIDFile)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.PIDFile, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(promRegistry)

	wsManager, pipeline, err := newPipeline(cfg, recorder)
	if err != nil {
		logger.Error("failed to initialize render pipeline", "workspace_dir", cfg.Render.WorkspaceDir, "error", err)
		return 1
	}

	if fs, err := storage.InspectFilesystem(cfg.Render.WorkspaceDir); err != nil {
		logger.Warn("cannot determine workspace filesystem", "workspace_dir", cfg.Render.WorkspaceDir, "error", err)
	} else if fs.Network() || fs.Volatile() {
		logger.Warn("workspace directory is not on durable local storage", "workspace_dir", cfg.Render.WorkspaceDir, "filesystem", fs.Type)
	}

	registry, err := newRegistry(cfg, pipeline)
	if err != nil {
		logger.Error("failed to build command registry", "error", err)
		return 1
	}
	for _, d := range registry.All() {
		logger.Info("command registered", "name", d.Name)
	}

	store, db, err := openHistory(ctx, cfg.History.Path)
	if err != nil {
		logger.Error("failed to open history log", "path", cfg.History.Path, "error", err)
		return 1
	}
	var (
		historyRecorder history.Recorder
		historyReader   api.HistoryReader
	)
	if store != nil {
		defer db.Close()
		historyRecorder = store
		historyReader = store
		logger.Info("history log opened", "path", cfg.History.Path)
	}

	disp := dispatch.New(registry, historyRecorder, recorder)

	session, err := bot.NewSession(cfg.Discord.Token, cfg.Discord.Prefix != "")
	if err != nil {
		logger.Error("failed to create Discord session", "error", err)
		return 1
	}
	gateway := bot.New(session, disp, bot.Options{
		GuildID:          cfg.Discord.GuildID,
		Prefix:           cfg.Discord.Prefix,
		RegisterCommands: cfg.Discord.RegisterCommands,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workspace.RunJanitor(gctx, wsManager, cfg.Render.JanitorInterval, cfg.Render.StaleAfter, log.WithComponent("janitor"))
	})
	g.Go(func() error {
		if err := gateway.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("bot: %w", err)
		}
		return nil
	})

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		renderBudget := cfg.Render.Timeout
		if renderBudget > 0 {
			renderBudget += cfg.Render.KillGrace
		}
		apiServer := api.New(api.Config{
			Listen:       cfg.API.Listen,
			APIKey:       cfg.API.Auth.APIKey,
			Tokens:       tokens,
			WriteTimeout: api.WriteTimeoutFor(renderBudget, cfg.Stats.Timeout),
		}, disp, historyReader, metrics.HTTPHandler(promRegistry), log.WithComponent("api"))

		g.Go(func() error {
			if err := apiServer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("mathbot running (press Ctrl+C to stop)")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("mathbot stopped")
	return 0
}

// newPipeline builds the workspace manager and render pipeline from config.
func newPipeline(cfg *config.Config, rec metrics.Recorder) (workspace.Manager, *render.Pipeline, error) {
	wsManager, err := workspace.NewFSManager(cfg.Render.WorkspaceDir)
	if err != nil {
		return nil, nil, err
	}
	invoker := render.NewInvoker(render.Config{
		Engine:    cfg.Render.Engine,
		Timeout:   cfg.Render.Timeout,
		KillGrace: cfg.Render.KillGrace,
	}, log.WithComponent("invoker"))

	return wsManager, render.NewPipeline(wsManager, invoker, rec, log.WithComponent("render")), nil
}

// newRegistry lists the commands in the order users see them.
func newRegistry(cfg *config.Config, pipeline *render.Pipeline) (*command.Registry, error) {
	return commands.Registry(
		commands.NewMath(pipeline),
		commands.NewOWStats(cfg.Stats.BaseURL, cfg.Stats.Timeout),
	)
}

// openHistory opens the history log. An empty path disables it and returns a
// nil store.
func openHistory(ctx context.Context, path string) (*history.Store, *sql.DB, error) {
	if path == "" {
		return nil, nil, nil
	}
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return history.New(db), db, nil
}
