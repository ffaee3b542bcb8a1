package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/mattjoyce/mathbot/internal/workspace"
)

const (
	// maxStderrBytes caps the amount of stderr captured from the engine.
	maxStderrBytes = 64 * 1024

	// defaultKillGrace is the time we wait after SIGTERM before sending SIGKILL.
	defaultKillGrace = 5 * time.Second
)

// Config describes how to run the engine.
type Config struct {
	// Engine is the typst binary name or path.
	Engine string
	// Timeout bounds a single engine run. Zero means no bound.
	Timeout time.Duration
	// KillGrace is the wait between SIGTERM and SIGKILL after a timeout.
	KillGrace time.Duration
}

// Invoker runs the engine against a workspace and classifies the result.
type Invoker struct {
	cfg    Config
	logger *slog.Logger
}

// NewInvoker creates an Invoker. An empty Engine defaults to "typst".
func NewInvoker(cfg Config, logger *slog.Logger) *Invoker {
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "typst"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
	}
	return &Invoker{cfg: cfg, logger: logger}
}

// Engine returns the configured engine binary.
func (inv *Invoker) Engine() string {
	return inv.cfg.Engine
}

// Render writes the source document for expression into ws, runs the engine
// and classifies the result. It never returns a partially populated Outcome.
func (inv *Invoker) Render(ctx context.Context, ws workspace.Workspace, expression string) Outcome {
	srcPath := ws.Path(SourceFile)
	outPath := ws.Path(ArtifactFile)

	if err := os.WriteFile(srcPath, []byte(Source(expression)), 0o600); err != nil {
		return InfrastructureError(fmt.Errorf("%w: %w", ErrSourceWrite, err))
	}

	res, err := inv.run(ctx, ws.Dir, srcPath, outPath)
	if err != nil {
		return InfrastructureError(err)
	}

	if res.exitCode != 0 {
		inv.logger.DebugContext(ctx, "engine rejected input", "exit_code", res.exitCode, "stderr_bytes", len(res.stderr))
		return InputError(firstLine(res.stderr))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return InfrastructureError(fmt.Errorf("%w: %w", ErrArtifactMissing, err))
	}
	return Artifact(data)
}

type runResult struct {
	exitCode int
	stderr   []byte
}

// run spawns "<engine> compile src out" in dir and waits for it. A returned
// error is always an infrastructure failure; a non-zero exit is reported in
// runResult instead.
func (inv *Invoker) run(ctx context.Context, dir, src, out string) (runResult, error) {
	// Prepare command (don't use CommandContext - termination is handled below)
	cmd := exec.Command(inv.cfg.Engine, "compile", src, out)
	cmd.Dir = dir

	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	// Stop waiting on stderr once the engine is gone, even if a child of it
	// still holds the pipe.
	cmd.WaitDelay = inv.cfg.KillGrace

	inv.logger.DebugContext(ctx, "spawning engine", "engine", inv.cfg.Engine, "workspace", dir, "timeout", inv.cfg.Timeout)

	if err := cmd.Start(); err != nil {
		return runResult{}, fmt.Errorf("%w: start %q: %w", ErrEngineSpawn, inv.cfg.Engine, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if inv.cfg.Timeout > 0 {
		timer := time.NewTimer(inv.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
		inv.terminate(cmd, waitErr)
		return runResult{}, fmt.Errorf("%w after %v", ErrEngineTimeout, inv.cfg.Timeout)

	case err := <-waitErr:
		if err == nil {
			return runResult{exitCode: 0, stderr: stderr.Bytes()}, nil
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return runResult{}, fmt.Errorf("%w: wait for process: %w", ErrEngineSpawn, err)
		}
		if exitErr.ExitCode() < 0 {
			return runResult{}, fmt.Errorf("%w: %v (stderr: %q)", ErrEngineCrashed, exitErr, firstLine(stderr.Bytes()))
		}
		return runResult{exitCode: exitErr.ExitCode(), stderr: stderr.Bytes()}, nil
	}
}

// terminate sends SIGTERM, waits KillGrace, then SIGKILL. It returns once the
// process has been reaped.
func (inv *Invoker) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	inv.logger.Warn("engine timed out, sending SIGTERM", "timeout", inv.cfg.Timeout)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		inv.logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(inv.cfg.KillGrace)
	defer grace.Stop()

	select {
	case <-waitErr:
		inv.logger.Info("engine exited after SIGTERM")
	case <-grace.C:
		inv.logger.Warn("engine did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			inv.logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

// firstLine returns stderr up to (not including) the first newline, or "" if
// stderr is not valid UTF-8.
func firstLine(stderr []byte) string {
	if !utf8.Valid(stderr) {
		return ""
	}
	line, _, _ := strings.Cut(string(stderr), "\n")
	return line
}

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest, so a chatty engine never blocks on a full pipe.
type cappedBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	switch {
	case room <= 0:
		b.truncated = b.truncated || len(p) > 0
	case len(p) > room:
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
	default:
		b.buf = append(b.buf, p...)
	}
	return len(p), nil
}

// Bytes returns the captured bytes. When the cap cut a multi-byte rune in
// half, the partial rune is dropped so the capture is not mistaken for
// invalid UTF-8.
func (b *cappedBuffer) Bytes() []byte {
	if !b.truncated {
		return b.buf
	}
	return trimPartialRune(b.buf)
}

func trimPartialRune(p []byte) []byte {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if !utf8.FullRune(p[i:]) {
			return p[:i]
		}
		return p
	}
	return p
}
