//go:build !darwin && !linux

package storage

// detectFilesystemType cannot tell filesystems apart on this platform and
// reports every path as local.
func detectFilesystemType(path string) (string, error) {
	return "unknown", nil
}
