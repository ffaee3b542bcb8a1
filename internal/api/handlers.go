package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mattjoyce/mathbot/internal/auth"
	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/dispatch"
	"github.com/mattjoyce/mathbot/internal/history"
)

const maxHistoryLimit = 200

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		CommandsLoaded: len(s.dispatcher.Registry().All()),
	})
}

// handleListCommands handles GET /commands.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	descs := s.dispatcher.Registry().All()
	out := make([]CommandInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, CommandInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.dispatcher.Registry().All()))
}

// handleRunCommand handles POST /commands/{name}. An attachment reply is
// streamed as the response body; a text reply is wrapped in RunResponse.
func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req RunRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	inv := command.Invocation{
		ID:      uuid.NewString(),
		Command: name,
		Args:    req.Args,
		Source:  "api",
		User:    principal.ID,
	}

	reply, err := s.dispatcher.Dispatch(r.Context(), inv)
	switch {
	case errors.Is(err, dispatch.ErrUnknownCommand):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("command %q not found", name))
		return
	case errors.Is(err, dispatch.ErrMissingParams):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("dispatch failed", "command", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, command.GenericErrorMessage)
		return
	}

	w.Header().Set("X-Invocation-ID", inv.ID)
	if a := reply.Attachment; a != nil {
		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.Name))
		w.Header().Set("X-Outcome", reply.Outcome)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(a.Data)
		return
	}

	respondJSON(w, http.StatusOK, RunResponse{
		InvocationID: inv.ID,
		Command:      name,
		Text:         reply.Text,
		Outcome:      reply.Outcome,
	})
}

// handleHistory handles GET /history?command=&limit=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history log is disabled")
		return
	}

	filter := history.Filter{Command: r.URL.Query().Get("command")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		filter.Limit = limit
	}

	entries, err := s.history.Recent(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewHistoryEntry(e))
	}
	respondJSON(w, http.StatusOK, out)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
