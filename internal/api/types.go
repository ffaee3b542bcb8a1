package api

import (
	"time"

	"github.com/mattjoyce/mathbot/internal/history"
)

// RunRequest is the JSON body for POST /commands/{name}.
type RunRequest struct {
	Args map[string]string `json:"args"`
}

// RunResponse is returned when a command answers with text.
type RunResponse struct {
	InvocationID string `json:"invocation_id"`
	Command      string `json:"command"`
	Text         string `json:"text"`
	Outcome      string `json:"outcome"`
}

// CommandInfo describes one registered command.
type CommandInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// HistoryEntry is one row of GET /history.
type HistoryEntry struct {
	InvocationID string    `json:"invocation_id"`
	Command      string    `json:"command"`
	Source       string    `json:"source"`
	User         string    `json:"user,omitempty"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewHistoryEntry converts a stored entry to its wire form.
func NewHistoryEntry(e history.Entry) HistoryEntry {
	return HistoryEntry{
		InvocationID: e.ID,
		Command:      e.Command,
		Source:       e.Source,
		User:         e.User,
		Outcome:      e.Outcome,
		Error:        e.Error,
		DurationMS:   e.Duration.Milliseconds(),
		CreatedAt:    e.CreatedAt,
	}
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	CommandsLoaded int    `json:"commands_loaded"`
}
