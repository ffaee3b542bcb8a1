package commands

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/log"
	"github.com/mattjoyce/mathbot/internal/render"
)

const (
	// MathAttachmentName is the filename users see on rendered images.
	MathAttachmentName = "rendered.png"
	mathInputErrorHead = "**Invalid Typst Math Syntax**"
)

// Renderer turns an expression into a render outcome.
type Renderer interface {
	Render(ctx context.Context, expression string) render.Outcome
}

// Math renders typst math expressions to PNG.
type Math struct {
	renderer Renderer
	logger   *slog.Logger
}

func NewMath(r Renderer) *Math {
	return &Math{renderer: r, logger: log.WithCommand("math")}
}

// Descriptor declares the math command.
func (m *Math) Descriptor() command.Descriptor {
	return command.Descriptor{
		Name:        "math",
		Description: "Math rendering via typst",
		Params: []command.Param{
			{Name: "expression", Description: "math expression (typst syntax)", Required: true},
		},
		Handler: m,
	}
}

func (m *Math) Handle(ctx context.Context, inv command.Invocation) (command.Reply, error) {
	outcome := m.renderer.Render(ctx, inv.Arg("expression"))
	return m.reply(outcome, inv.ID), nil
}

func (m *Math) reply(outcome render.Outcome, invocationID string) command.Reply {
	kind := outcome.Kind.String()
	switch outcome.Kind {
	case render.KindArtifact:
		digest := blake3.Sum256(outcome.Artifact)
		m.logger.Info("rendered expression",
			"invocation_id", invocationID,
			"bytes", len(outcome.Artifact),
			"blake3", hex.EncodeToString(digest[:]),
		)
		return command.Reply{
			Attachment: &command.Attachment{
				Name:        MathAttachmentName,
				ContentType: "image/png",
				Data:        outcome.Artifact,
			},
			Outcome: kind,
		}
	case render.KindInputError:
		return command.TextReply(mathInputErrorHead+"\n"+outcome.UserMessage(), kind)
	default:
		return command.TextReply(outcome.UserMessage(), kind)
	}
}
