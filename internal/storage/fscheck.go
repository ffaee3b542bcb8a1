package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// volatileFilesystems live in memory and lose their contents on reboot.
var volatileFilesystems = map[string]struct{}{
	"tmpfs": {},
	"ramfs": {},
}

// Filesystem describes the filesystem a path lives on.
type Filesystem struct {
	// Path is the nearest existing ancestor that was inspected.
	Path string
	Type string
}

// Network reports whether the filesystem is a network mount.
func (f Filesystem) Network() bool {
	return hasType(networkFilesystems, f.Type)
}

// Volatile reports whether the filesystem is memory-backed.
func (f Filesystem) Volatile() bool {
	return hasType(volatileFilesystems, f.Type)
}

// InspectFilesystem reports the filesystem holding path. Paths that do not
// exist yet are resolved through their nearest existing ancestor, so the
// result describes where the directory will be created.
func InspectFilesystem(path string) (Filesystem, error) {
	return inspectFilesystemWithDetector(path, detectFilesystemType)
}

func inspectFilesystemWithDetector(path string, detector func(string) (string, error)) (Filesystem, error) {
	if strings.TrimSpace(path) == "" {
		return Filesystem{}, fmt.Errorf("path is empty")
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return Filesystem{}, fmt.Errorf("resolve path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		return Filesystem{}, fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}
	return Filesystem{Path: inspectPath, Type: fsType}, nil
}

// validateSQLiteFilesystem ensures the history database is on a local
// filesystem.
func validateSQLiteFilesystem(path string) error {
	return validateSQLiteFilesystemWithDetector(path, detectFilesystemType)
}

func validateSQLiteFilesystemWithDetector(path string, detector func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	fs, err := inspectFilesystemWithDetector(path, detector)
	if err != nil {
		return err
	}

	if fs.Network() {
		return fmt.Errorf(
			"history database %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Set history.path to a local file or leave it empty to disable the history log",
			path,
			fs.Type,
		)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func hasType(set map[string]struct{}, fsType string) bool {
	_, found := set[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}
