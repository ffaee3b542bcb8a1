package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/history"
	"github.com/mattjoyce/mathbot/internal/log"
	"github.com/mattjoyce/mathbot/internal/metrics"
)

var (
	// ErrUnknownCommand means no descriptor is registered under the name.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingParams means a required parameter was absent or blank.
	ErrMissingParams = errors.New("missing required parameters")
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Dispatcher runs invocations against a command registry.
type Dispatcher struct {
	registry *command.Registry
	history  history.Recorder
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Dispatcher. A nil history or recorder disables that sink.
func New(reg *command.Registry, hist history.Recorder, rec metrics.Recorder) *Dispatcher {
	if hist == nil {
		hist = history.Nop{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		registry: reg,
		history:  hist,
		recorder: rec,
		logger:   log.WithComponent("dispatch"),
		now:      time.Now,
	}
}

// Registry returns the registry this dispatcher resolves commands in.
func (d *Dispatcher) Registry() *command.Registry {
	return d.registry
}

// Dispatch runs one invocation and returns the reply for its channel.
//
// A non-nil error is returned only when the invocation could not be matched
// to a runnable command; handler failures come back as a generic reply.
func (d *Dispatcher) Dispatch(ctx context.Context, inv command.Invocation) (command.Reply, error) {
	desc, ok := d.registry.Get(inv.Command)
	if !ok {
		return command.Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, inv.Command)
	}
	if missing := command.MissingParams(desc, inv); len(missing) > 0 {
		return command.Reply{}, fmt.Errorf("%w: %s", ErrMissingParams, strings.Join(missing, ", "))
	}

	inv.Command = desc.Name
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = d.now()
	}

	invLogger := log.WithInvocation(inv.ID).With("command", inv.Command, "source", inv.Source)
	invLogger.Debug("dispatching invocation", "user", inv.User, "channel", inv.Channel)

	start := d.now()
	reply, err := runHandler(ctx, desc.Handler, inv)
	elapsed := d.now().Sub(start)

	result := reply.Outcome
	errText := ""
	if err != nil {
		invLogger.Error("command failed", "error", err, "duration_ms", elapsed.Milliseconds())
		reply = command.TextReply(command.GenericErrorMessage, resultError)
		result = resultError
		errText = err.Error()
	} else {
		if result == "" {
			result = resultOK
		}
		invLogger.Info("command completed", "result", result, "duration_ms", elapsed.Milliseconds())
	}

	d.recorder.ObserveInvocation(inv.Command, result, elapsed)
	if herr := d.history.Record(ctx, history.Entry{
		ID:          inv.ID,
		Command:     inv.Command,
		Source:      inv.Source,
		User:        inv.User,
		Channel:     inv.Channel,
		Outcome:     result,
		Error:       errText,
		Duration:    elapsed,
		CreatedAt:   inv.CreatedAt,
		CompletedAt: start.Add(elapsed),
	}); herr != nil {
		invLogger.Warn("failed to record invocation history", "error", herr)
	}

	return reply, nil
}

func runHandler(ctx context.Context, h command.Handler, inv command.Invocation) (reply command.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, inv)
}
