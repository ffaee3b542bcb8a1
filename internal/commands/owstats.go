package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/log"
)

// DefaultStatsBaseURL is the public OverFast API.
const DefaultStatsBaseURL = "https://overfast-api.tekrop.fr"

// maxStatsBody bounds how much of a stats response is decoded.
const maxStatsBody = 1 << 20

// OWStats is the subset of the player summary the command reports.
type OWStats struct {
	General GeneralStats `json:"general"`
}

type GeneralStats struct {
	Average   AverageStats `json:"average"`
	GamesLost int          `json:"games_lost"`
	GamesWon  int          `json:"games_won"`
	KDA       float32      `json:"kda"`
	Winrate   float32      `json:"winrate"`
}

type AverageStats struct {
	Damage  float32 `json:"damage"`
	Healing float32 `json:"healing"`
}

// OWStatsCommand looks up Overwatch player summaries.
type OWStatsCommand struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOWStats creates the command. An empty baseURL uses DefaultStatsBaseURL
// and a non-positive timeout means 10s.
func NewOWStats(baseURL string, timeout time.Duration) *OWStatsCommand {
	if baseURL == "" {
		baseURL = DefaultStatsBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OWStatsCommand{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log.WithCommand("owstats"),
	}
}

func (c *OWStatsCommand) Descriptor() command.Descriptor {
	return command.Descriptor{
		Name:        "owstats",
		Description: "Get Overwatch Stats of a Player",
		Params: []command.Param{
			{Name: "player", Description: "player", Required: true},
		},
		Handler: c,
	}
}

// NormalizePlayer turns a BattleTag into the API's player id:
// "Name #1234" becomes "Name-1234".
func NormalizePlayer(player string) string {
	player = strings.ReplaceAll(player, "#", "-")
	return strings.ReplaceAll(player, " ", "")
}

func (c *OWStatsCommand) Handle(ctx context.Context, inv command.Invocation) (command.Reply, error) {
	player := NormalizePlayer(inv.Arg("player"))

	stats, err := c.fetch(ctx, player)
	if err != nil {
		c.logger.Warn("stats lookup failed", "invocation_id", inv.ID, "player", player, "error", err)
		return command.TextReply(fmt.Sprintf("Could not fetch stats for %s.", player), "lookup_failed"), nil
	}
	return command.TextReply(FormatStats(player, stats), "ok"), nil
}

func (c *OWStatsCommand) fetch(ctx context.Context, player string) (OWStats, error) {
	endpoint := fmt.Sprintf("%s/players/%s/stats/summary", c.baseURL, url.PathEscape(player))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return OWStats{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return OWStats{}, fmt.Errorf("request stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OWStats{}, fmt.Errorf("stats api returned %s", resp.Status)
	}

	var stats OWStats
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxStatsBody)).Decode(&stats); err != nil {
		return OWStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// FormatStats renders the chat reply for a player's summary.
func FormatStats(player string, s OWStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**STATS FOR PLAYER %s**\n", player)
	fmt.Fprintf(&b, "📊      **KDA:** %s\n", formatFloat(s.General.KDA))
	fmt.Fprintf(&b, "📊      **Winrate:** %s%%\n", formatFloat(s.General.Winrate))
	fmt.Fprintf(&b, "💣      **Average Damage:** %s\n", formatFloat(s.General.Average.Damage))
	fmt.Fprintf(&b, "💛      **Average Healing:** %s\n", formatFloat(s.General.Average.Healing))
	fmt.Fprintf(&b, "📈      **Games Won:** %d\n", s.General.GamesWon)
	fmt.Fprintf(&b, "📉      **Games Lost:** %d", s.General.GamesLost)
	return b.String()
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}
