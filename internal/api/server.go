package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/mathbot/internal/auth"
	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/history"
)

// Dispatcher runs command invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv command.Invocation) (command.Reply, error)
	Registry() *command.Registry
}

// HistoryReader lists past invocations.
type HistoryReader interface {
	Recent(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// MaxBodyBytes bounds POST bodies. Zero means 64 KiB.
	MaxBodyBytes int64
	// WriteTimeout bounds writing a response, the command run included.
	// Zero means no bound. See WriteTimeoutFor.
	WriteTimeout time.Duration
}

// writeSlack covers dispatch, workspace setup and the response write on top
// of the slowest command's own budget.
const writeSlack = 30 * time.Second

// WriteTimeoutFor returns a response deadline that outlasts every command
// budget given. A zero budget means that command is unbounded, and so is the
// result.
func WriteTimeoutFor(budgets ...time.Duration) time.Duration {
	var longest time.Duration
	for _, b := range budgets {
		if b <= 0 {
			return 0
		}
		longest = max(longest, b)
	}
	return longest + writeSlack
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	history    HistoryReader
	metrics    http.Handler
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance. A nil history disables GET /history
// and a nil metrics handler disables GET /metrics.
func New(config Config, dispatcher Dispatcher, hist HistoryReader, metrics http.Handler, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 * 1024
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		history:    hist,
		metrics:    metrics,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server (blocking) and shuts it down gracefully when
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = s.httpServer()

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeCommandsRead)).Get("/commands", s.handleListCommands)
		r.With(s.requireScopes(auth.ScopeCommandsRead)).Get("/openapi.json", s.handleOpenAPI)
		r.With(s.requireScopes(auth.ScopeCommandsRun)).Post("/commands/{name}", s.handleRunCommand)
		r.With(s.requireScopes(auth.ScopeHistoryRead)).Get("/history", s.handleHistory)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware resolves the bearer token to a principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := auth.Authenticate(token, s.config.APIKey, s.config.Tokens)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes rejects principals holding none of the given scopes.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !auth.HasAnyScope(principal, scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
