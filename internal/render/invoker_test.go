package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/mathbot/internal/workspace"
)

// fakeEngine mimics "typst compile <src> <out>": it copies the source to the
// output so tests can compare bytes, and rejects any document containing "$$$"
// with a multi-line diagnostic.
const fakeEngine = `#!/bin/bash
if [ "$1" != "compile" ]; then
  echo "unexpected subcommand: $1" >&2
  exit 2
fi
if grep -q '\$\$\$' "$2"; then
  printf 'error: unexpected dollar sign\n  ┌─ math.typ:3:3\n  │\n3 │ $ $$$invalid$$$ $\n' >&2
  exit 1
fi
cp "$2" "$3"
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "typst")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write engine script: %v", err)
	}
	return path
}

func acquire(t *testing.T) workspace.Workspace {
	t.Helper()
	mgr, err := workspace.NewFSManager(filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	ws, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Release(ws) })
	return ws
}

func TestSourceWrapsExpressionVerbatim(t *testing.T) {
	got := Source(`x^2 + "}" $ #panic()`)
	want := "#set page(margin: 0.5cm, width: auto, height: auto, fill: none)\n" +
		"#set text(fill: white, size: 0.7cm)\n" +
		"$ x^2 + \"}\" $ #panic() $\n"
	assert.Equal(t, want, got)
}

func TestInvokerRenderArtifact(t *testing.T) {
	inv := NewInvoker(Config{Engine: writeEngine(t, fakeEngine)}, discardLogger())
	ws := acquire(t)

	out := inv.Render(context.Background(), ws, "x^2 + y^2 = z^2")

	require.Equal(t, KindArtifact, out.Kind, "outcome error: %v", out.Err)
	assert.Equal(t, []byte(Source("x^2 + y^2 = z^2")), out.Artifact)
	assert.Empty(t, out.Message)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.UserMessage())

	src, err := os.ReadFile(ws.Path(SourceFile))
	require.NoError(t, err)
	assert.Equal(t, Source("x^2 + y^2 = z^2"), string(src))
}

func TestInvokerRenderInputErrorFirstLineOnly(t *testing.T) {
	inv := NewInvoker(Config{Engine: writeEngine(t, fakeEngine)}, discardLogger())

	out := inv.Render(context.Background(), acquire(t), "$$$invalid$$$")

	require.Equal(t, KindInputError, out.Kind)
	assert.Equal(t, "error: unexpected dollar sign", out.Message)
	assert.NotContains(t, out.Message, "\n")
	assert.Nil(t, out.Artifact)
	assert.Equal(t, out.Message, out.UserMessage())
}

func TestInvokerRenderInputErrorFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "empty stderr",
			script: "#!/bin/bash\nexit 1\n",
			want:   "",
		},
		{
			name:   "invalid utf8",
			script: "#!/bin/bash\nprintf 'bad \\xff\\xfe bytes\\nmore\\n' >&2\nexit 1\n",
			want:   "",
		},
		{
			name:   "no trailing newline",
			script: "#!/bin/bash\nprintf 'error: only line' >&2\nexit 3\n",
			want:   "error: only line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewInvoker(Config{Engine: writeEngine(t, tt.script)}, discardLogger())
			out := inv.Render(context.Background(), acquire(t), "x")
			require.Equal(t, KindInputError, out.Kind)
			assert.Equal(t, tt.want, out.Message)
		})
	}
}

func TestInvokerRenderMissingEngine(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "typst-not-installed")
	inv := NewInvoker(Config{Engine: missing}, discardLogger())

	out := inv.Render(context.Background(), acquire(t), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrEngineSpawn), "error = %v", out.Err)
	assert.Equal(t, GenericErrorMessage, out.UserMessage())
	assert.NotContains(t, out.UserMessage(), missing)
}

func TestInvokerRenderArtifactMissing(t *testing.T) {
	inv := NewInvoker(Config{Engine: writeEngine(t, "#!/bin/bash\nexit 0\n")}, discardLogger())

	out := inv.Render(context.Background(), acquire(t), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrArtifactMissing), "error = %v", out.Err)
	assert.Equal(t, GenericErrorMessage, out.UserMessage())
}

func TestInvokerRenderEngineKilledBySignal(t *testing.T) {
	inv := NewInvoker(Config{Engine: writeEngine(t, "#!/bin/bash\nkill -9 $$\n")}, discardLogger())

	out := inv.Render(context.Background(), acquire(t), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrEngineCrashed), "error = %v", out.Err)
}

func TestInvokerRenderTimeout(t *testing.T) {
	inv := NewInvoker(Config{
		Engine:    writeEngine(t, "#!/bin/bash\nexec sleep 30\n"),
		Timeout:   200 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	}, discardLogger())

	start := time.Now()
	out := inv.Render(context.Background(), acquire(t), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrEngineTimeout), "error = %v", out.Err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestInvokerRenderTimeoutEscalatesToKill(t *testing.T) {
	script := "#!/bin/bash\ntrap '' TERM\nwhile true; do sleep 0.05; done\n"
	inv := NewInvoker(Config{
		Engine:    writeEngine(t, script),
		Timeout:   100 * time.Millisecond,
		KillGrace: 100 * time.Millisecond,
	}, discardLogger())

	out := inv.Render(context.Background(), acquire(t), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrEngineTimeout), "error = %v", out.Err)
}

func TestInvokerRenderSourceWriteFailure(t *testing.T) {
	inv := NewInvoker(Config{Engine: writeEngine(t, fakeEngine)}, discardLogger())
	ws := workspace.Workspace{ID: "gone", Dir: filepath.Join(t.TempDir(), "gone")}

	out := inv.Render(context.Background(), ws, "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrSourceWrite), "error = %v", out.Err)
}

func TestNewInvokerDefaults(t *testing.T) {
	inv := NewInvoker(Config{}, discardLogger())
	assert.Equal(t, "typst", inv.Engine())
	assert.Equal(t, defaultKillGrace, inv.cfg.KillGrace)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("abcd"), b.Bytes())
}

func TestCappedBufferDropsSplitRune(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		input string
		want  string
	}{
		{name: "cut after one byte of rune", limit: 3, input: "ab│cd", want: "ab"},
		{name: "cut after two bytes of rune", limit: 4, input: "ab│cd", want: "ab"},
		{name: "cut on rune boundary", limit: 4, input: "a│cd", want: "a│"},
		{name: "not truncated", limit: 16, input: "a│", want: "a│"},
		{name: "invalid input kept as is", limit: 16, input: "a\xff", want: "a\xff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &cappedBuffer{limit: tt.limit}
			_, err := b.Write([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b.Bytes()))
		})
	}
}

func TestInvokerRenderInputErrorWithOversizedStderr(t *testing.T) {
	// 27 bytes precede 30000 three-byte runes, so the 64 KiB cap lands
	// inside a rune.
	script := "#!/bin/bash\n" +
		"printf 'error: unclosed delimiter\\nx' >&2\n" +
		"s=$(printf '│%.0s' $(seq 1 30000))\n" +
		"printf '%s' \"$s\" >&2\n" +
		"exit 1\n"
	inv := NewInvoker(Config{Engine: writeEngine(t, script)}, discardLogger())

	out := inv.Render(context.Background(), acquire(t), "x")

	require.Equal(t, KindInputError, out.Kind)
	assert.Equal(t, "error: unclosed delimiter", out.Message)
}

// TestInvokerRealTypst exercises the installed engine when one is available.
func TestInvokerRealTypst(t *testing.T) {
	engine, err := exec.LookPath("typst")
	if err != nil {
		t.Skip("typst not installed")
	}
	inv := NewInvoker(Config{Engine: engine, Timeout: time.Minute}, discardLogger())

	ok := inv.Render(context.Background(), acquire(t), "x^2 + y^2 = z^2")
	require.Equal(t, KindArtifact, ok.Kind, "outcome error: %v", ok.Err)
	assert.NotEmpty(t, ok.Artifact)

	bad := inv.Render(context.Background(), acquire(t), "$$$invalid$$$")
	require.Equal(t, KindInputError, bad.Kind)
	assert.NotEmpty(t, bad.Message)
}
