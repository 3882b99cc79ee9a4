package plan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactFileName is the raw solver output written on every attempt.
const ArtifactFileName = "plan.pddl"

// ArtifactPath returns <dataDir>/plan.pddl.
func ArtifactPath(dataDir string) string {
	return filepath.Join(dataDir, ArtifactFileName)
}

// ArchivePath returns <dataDir>/plan_<attempt>.
func ArchivePath(dataDir string, attempt int) string {
	return filepath.Join(dataDir, fmt.Sprintf("plan_%d", attempt))
}

// ArchiveArtifact copies the raw artifact to its attempt-numbered name.
// Uses a temp file + rename so a reader never sees a partial copy.
func ArchiveArtifact(dataDir string, attempt int) (string, error) {
	dst := ArchivePath(dataDir, attempt)
	tmpPath := fmt.Sprintf("%s.tmp.%d", dst, os.Getpid())

	src, err := os.Open(ArtifactPath(dataDir))
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return dst, nil
}
