package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written by `mathbot config lock`.
const ChecksumFile = ".checksums"

// LockedFiles are the files in a config directory covered by the manifest.
// Missing ones are skipped.
var LockedFiles = []string{"config.yaml", ".env"}

// ErrNoChecksums means the config directory has no manifest.
var ErrNoChecksums = errors.New("checksums file not found (run 'mathbot config lock')")

// HashUpdateFileResult captures checksum generation outcome for one file.
type HashUpdateFileResult struct {
	Filename string
	Path     string
	Exists   bool
	Hash     string
}

// HashUpdateReport captures checksum generation details for a config directory.
type HashUpdateReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Files        []HashUpdateFileResult
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// GenerateChecksums hashes the locked files of configDir and writes .checksums.
func GenerateChecksums(configDir string) error {
	_, err := GenerateChecksumsWithReport(configDir, false)
	return err
}

// GenerateChecksumsWithReport hashes the locked files and optionally writes
// .checksums. When dryRun is true nothing is written.
func GenerateChecksumsWithReport(configDir string, dryRun bool) (*HashUpdateReport, error) {
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}

	report := &HashUpdateReport{
		ConfigDir:    configDir,
		ChecksumPath: filepath.Join(configDir, ChecksumFile),
		Files:        make([]HashUpdateFileResult, 0, len(LockedFiles)),
	}

	for _, filename := range LockedFiles {
		filePath := filepath.Join(configDir, filename)

		if !fileExists(filePath) {
			report.Files = append(report.Files, HashUpdateFileResult{
				Filename: filename,
				Path:     filePath,
			})
			continue
		}

		hash, err := ComputeBlake3Hash(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", filename, err)
		}

		manifest.Hashes[filename] = hash
		report.Files = append(report.Files, HashUpdateFileResult{
			Filename: filename,
			Path:     filePath,
			Exists:   true,
			Hash:     hash,
		})
	}

	if _, ok := manifest.Hashes["config.yaml"]; !ok {
		return nil, fmt.Errorf("config.yaml not found in %s", configDir)
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}

	// Restrictive permissions: the manifest sits next to secrets.
	if err := os.WriteFile(report.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true

	return report, nil
}

// LoadChecksums reads the .checksums file from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoChecksums
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}

	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	return &manifest, nil
}

// verifyConfigHashes checks the locked files of configDir against its
// manifest. A directory without a manifest is not verified.
func verifyConfigHashes(configDir string) error {
	manifest, err := LoadChecksums(configDir)
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, filename := range LockedFiles {
		path := filepath.Join(configDir, filename)
		expectedHash, listed := manifest.Hashes[filename]

		switch {
		case !fileExists(path) && listed:
			return fmt.Errorf("%s is in checksums but missing from disk", filename)
		case !fileExists(path):
			continue
		case !listed:
			return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
				"Run: mathbot config lock --config %s", filename, configDir, configDir)
		}

		if err := VerifyFileHash(path, expectedHash); err != nil {
			return fmt.Errorf("config verification failed for %s: %w\n"+
				"This indicates tampering or unauthorized modification.\n"+
				"If you edited this file intentionally, run: mathbot config lock --config %s", path, err, configDir)
		}
	}
	return nil
}

// ManifestFiles lists the filenames recorded in a manifest, sorted.
func (m *ChecksumManifest) ManifestFiles() []string {
	names := make([]string, 0, len(m.Hashes))
	for name := range m.Hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
