package render

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mattjoyce/mathbot/internal/metrics"
	"github.com/mattjoyce/mathbot/internal/workspace"
)

// Pipeline renders expressions, one private workspace per call. It holds no
// mutable state and is safe for concurrent use.
type Pipeline struct {
	workspaces workspace.Manager
	invoker    *Invoker
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. A nil recorder disables metrics.
func NewPipeline(ws workspace.Manager, inv *Invoker, rec metrics.Recorder, logger *slog.Logger) *Pipeline {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Pipeline{
		workspaces: ws,
		invoker:    inv,
		recorder:   rec,
		logger:     logger,
	}
}

// Render runs the full acquire → write → compile → classify → release cycle
// for expression. The workspace is gone by the time Render returns, whatever
// the outcome.
func (p *Pipeline) Render(ctx context.Context, expression string) Outcome {
	start := time.Now()

	outcome, err := workspace.With(ctx, p.workspaces, func(ws workspace.Workspace) Outcome {
		return p.invoker.Render(ctx, ws, expression)
	})
	switch {
	case errors.Is(err, workspace.ErrAllocation):
		outcome = InfrastructureError(err)
	case err != nil:
		// The render itself finished; a leftover directory is for the janitor.
		p.logger.ErrorContext(ctx, "failed to release workspace", "error", err)
	}

	elapsed := time.Since(start)
	switch outcome.Kind {
	case KindInfrastructureError:
		p.logger.ErrorContext(ctx, "render failed", "error", outcome.Err, "engine", p.invoker.Engine(), "duration_ms", elapsed.Milliseconds())
	case KindInputError:
		p.logger.InfoContext(ctx, "render rejected by engine", "message", outcome.Message, "duration_ms", elapsed.Milliseconds())
	default:
		p.logger.InfoContext(ctx, "render completed", "bytes", len(outcome.Artifact), "duration_ms", elapsed.Milliseconds())
	}
	p.recorder.ObserveRender(outcome.Kind.String(), elapsed)

	return outcome
}
