package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/mathbot/internal/api"
	"github.com/mattjoyce/mathbot/internal/config"
	"github.com/mattjoyce/mathbot/internal/history"
	"github.com/mattjoyce/mathbot/internal/log"
	"github.com/mattjoyce/mathbot/internal/metrics"
	"github.com/mattjoyce/mathbot/internal/render"
)

func runRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	outPath := fs.String("out", "rendered.png", "Output PNG file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	expression := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(expression) == "" {
		fmt.Fprintln(os.Stderr, "Usage: mathbot render [--config PATH] [--out FILE] <expression>")
		return 1
	}

	cfg, err := config.LoadDiscovered(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// Results go to the terminal; only failures are worth a log line.
	log.Setup("ERROR", cfg.Service.LogFormat)

	_, pipeline, err := newPipeline(cfg, metrics.NoopRecorder{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize render pipeline: %v\n", err)
		return 1
	}

	outcome := pipeline.Render(context.Background(), expression)
	switch outcome.Kind {
	case render.KindArtifact:
		if err := os.WriteFile(*outPath, outcome.Artifact, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *outPath, err)
			return 1
		}
		fmt.Printf("Wrote %s (%d bytes)\n", *outPath, len(outcome.Artifact))
		return 0
	case render.KindInputError:
		fmt.Fprintf(os.Stderr, "Invalid typst math syntax: %s\n", outcome.Message)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "Render failed: %v\n", outcome.Err)
		return 1
	}
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	commandName := fs.String("command", "", "Only show this command")
	limit := fs.Int("limit", 20, "Maximum number of entries")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "Error: --limit must be at least 1")
		return 1
	}

	cfg, err := config.LoadDiscovered(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.History.Path == "" {
		fmt.Fprintln(os.Stderr, "History log is disabled (set history.path)")
		return 1
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		fmt.Fprintf(os.Stderr, "History log not found: %s\n", cfg.History.Path)
		return 1
	}

	ctx := context.Background()
	store, db, err := openHistory(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history log: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := store.Recent(ctx, history.Filter{Command: *commandName, Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		out := make([]api.HistoryEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, api.NewHistoryEntry(e))
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No invocations recorded.")
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMMAND\tSOURCE\tOUTCOME\tDURATION\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.Command,
			e.Source,
			dashIfEmpty(e.Outcome),
			e.Duration.Round(time.Millisecond),
			e.ID,
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
