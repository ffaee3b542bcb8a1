package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/mathbot/internal/workspace"
)

type recordedRender struct {
	outcome string
}

type stubRecorder struct {
	mu      sync.Mutex
	renders []recordedRender
}

func (r *stubRecorder) ObserveRender(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, recordedRender{outcome: outcome})
}

func (r *stubRecorder) ObserveInvocation(string, string, time.Duration) {}

func newTestPipeline(t *testing.T, script string) (*Pipeline, string, *stubRecorder) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := workspace.NewFSManager(root)
	require.NoError(t, err)

	rec := &stubRecorder{}
	inv := NewInvoker(Config{Engine: writeEngine(t, script), Timeout: 10 * time.Second}, discardLogger())
	return NewPipeline(mgr, inv, rec, discardLogger()), root, rec
}

func assertNoWorkspaces(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace root should be empty after render")
}

func TestPipelineReleasesWorkspaceOnEveryOutcome(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		expression string
		want       Kind
	}{
		{name: "artifact", script: fakeEngine, expression: "x^2 + y^2 = z^2", want: KindArtifact},
		{name: "input error", script: fakeEngine, expression: "$$$invalid$$$", want: KindInputError},
		{name: "artifact missing", script: "#!/bin/bash\nexit 0\n", expression: "x", want: KindInfrastructureError},
		{name: "crash", script: "#!/bin/bash\nkill -9 $$\n", expression: "x", want: KindInfrastructureError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, root, rec := newTestPipeline(t, tt.script)

			out := p.Render(context.Background(), tt.expression)

			assert.Equal(t, tt.want, out.Kind)
			assertNoWorkspaces(t, root)
			require.Len(t, rec.renders, 1)
			assert.Equal(t, tt.want.String(), rec.renders[0].outcome)
		})
	}
}

func TestPipelineMissingEngine(t *testing.T) {
	root := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := workspace.NewFSManager(root)
	require.NoError(t, err)
	missing := filepath.Join(t.TempDir(), "renamed-typst")
	p := NewPipeline(mgr, NewInvoker(Config{Engine: missing}, discardLogger()), nil, discardLogger())

	out := p.Render(context.Background(), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrEngineSpawn))
	assert.Equal(t, GenericErrorMessage, out.UserMessage())
	assertNoWorkspaces(t, root)
}

func TestPipelineAllocationFailureSkipsEngine(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	mgr, err := workspace.NewFSManager(filepath.Join(blocker, "workspaces"))
	require.NoError(t, err)

	marker := filepath.Join(t.TempDir(), "engine-ran")
	script := fmt.Sprintf("#!/bin/bash\ntouch %q\ncp \"$2\" \"$3\"\n", marker)
	p := NewPipeline(mgr, NewInvoker(Config{Engine: writeEngine(t, script)}, discardLogger()), nil, discardLogger())

	out := p.Render(context.Background(), "x^2")

	require.Equal(t, KindInfrastructureError, out.Kind)
	assert.True(t, errors.Is(out.Err, workspace.ErrAllocation))
	assert.Equal(t, GenericErrorMessage, out.UserMessage())
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "engine must not run without a workspace")
}

// failingRelease wraps a manager and reports a release failure after removing
// the directory.
type failingRelease struct {
	workspace.Manager
}

func (f failingRelease) Release(ws workspace.Workspace) error {
	_ = f.Manager.Release(ws)
	return fmt.Errorf("%w: simulated", workspace.ErrRelease)
}

func TestPipelineReleaseFailureKeepsOutcome(t *testing.T) {
	mgr, err := workspace.NewFSManager(filepath.Join(t.TempDir(), "workspaces"))
	require.NoError(t, err)
	inv := NewInvoker(Config{Engine: writeEngine(t, fakeEngine)}, discardLogger())
	p := NewPipeline(failingRelease{mgr}, inv, nil, discardLogger())

	out := p.Render(context.Background(), "a + b")

	require.Equal(t, KindArtifact, out.Kind)
	assert.Equal(t, []byte(Source("a + b")), out.Artifact)
}

func TestPipelineConcurrentRendersAreIsolated(t *testing.T) {
	p, root, _ := newTestPipeline(t, fakeEngine)

	const n = 16
	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = p.Render(context.Background(), fmt.Sprintf("marker_%02d", i))
		}()
	}
	wg.Wait()

	for i, out := range outcomes {
		require.Equal(t, KindArtifact, out.Kind, "render %d: %v", i, out.Err)
		own := fmt.Sprintf("marker_%02d", i)
		assert.Equal(t, []byte(Source(own)), out.Artifact, "render %d saw foreign bytes", i)
		for j := range n {
			if j == i {
				continue
			}
			assert.False(t, strings.Contains(string(out.Artifact), fmt.Sprintf("marker_%02d", j)),
				"render %d observed marker of render %d", i, j)
		}
	}
	assertNoWorkspaces(t, root)
}
