package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"time"
)

// ErrAllocation marks a failure to create a scratch workspace. Callers treat it
// as an infrastructure failure and abort before doing any work.
var ErrAllocation = errors.New("workspace allocation failed")

// ErrRelease marks a failure to remove a workspace after use.
var ErrRelease = errors.New("workspace release failed")

// Workspace is the scratch directory owned by exactly one invocation.
type Workspace struct {
	ID  string
	Dir string
}

// Path returns the absolute path of name inside the workspace.
func (w Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
}

// Manager governs scratch workspace lifecycle.
type Manager interface {
	// Acquire creates a fresh, uniquely named workspace.
	Acquire(ctx context.Context) (Workspace, error)

	// Release removes ws and everything inside it.
	Release(ws Workspace) error

	// Cleanup removes workspaces older than olderThan that were never released,
	// e.g. after a crash.
	Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}

// With acquires a workspace, runs fn inside it and releases the workspace on
// every exit path, including a panic in fn. The returned error is non-nil when
// acquisition failed (fn never ran) or when release failed (result is still
// valid).
func With[T any](ctx context.Context, m Manager, fn func(Workspace) T) (result T, err error) {
	ws, err := m.Acquire(ctx)
	if err != nil {
		return result, err
	}
	defer func() {
		if rerr := m.Release(ws); rerr != nil {
			err = rerr
		}
	}()

	return fn(ws), nil
}
