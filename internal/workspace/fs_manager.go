package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// fsManager manages per-invocation scratch directories on local disk.
type fsManager struct {
	root  string
	now   func() time.Time
	newID func() string
}

var _ Manager = (*fsManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at root.
// The root is created lazily on the first Acquire.
func NewFSManager(root string) (*fsManager, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root directory is empty")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %q: %w", trimmed, err)
	}

	return &fsManager{
		root:  abs,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Root returns the directory all workspaces are created under.
func (m *fsManager) Root() string {
	return m.root
}

// Acquire creates a new workspace directory. The directory is created with an
// exclusive mkdir, so an existing directory is never handed out twice.
func (m *fsManager) Acquire(ctx context.Context) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	if err := os.MkdirAll(m.root, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("%w: create workspace root: %w", ErrAllocation, err)
	}

	id := m.newID()
	path := filepath.Join(m.root, id)
	if err := os.Mkdir(path, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("%w: create workspace %q: %w", ErrAllocation, id, err)
	}

	return Workspace{ID: id, Dir: path}, nil
}

// Release deletes the workspace directory and its contents. Releasing a
// workspace that is already gone is not an error.
func (m *fsManager) Release(ws Workspace) error {
	if err := m.owns(ws); err != nil {
		return fmt.Errorf("%w: %w", ErrRelease, err)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("%w: remove workspace %q: %w", ErrRelease, ws.ID, err)
	}
	return nil
}

// Cleanup removes workspace directories older than olderThan based on directory
// modification time. Entries that were not created by this manager are left
// alone.
func (m *fsManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // released concurrently
			}
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

// owns checks that ws is a direct child of the manager root.
func (m *fsManager) owns(ws Workspace) error {
	if strings.TrimSpace(ws.Dir) == "" {
		return fmt.Errorf("workspace directory is empty")
	}
	if filepath.Dir(filepath.Clean(ws.Dir)) != m.root {
		return fmt.Errorf("workspace %q is outside root %q", ws.Dir, m.root)
	}
	if filepath.Base(ws.Dir) != ws.ID {
		return fmt.Errorf("workspace %q does not match id %q", ws.Dir, ws.ID)
	}
	return nil
}
