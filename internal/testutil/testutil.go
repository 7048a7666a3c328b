// Package testutil provides testing utilities for dvc tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// SetupTestRepo creates a temporary repository with the .dvc/tmp layout.
// Returns the path to the repository root, which is removed when the test
// completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".dvc", "tmp"), 0755); err != nil {
		t.Fatalf("failed to create .dvc layout: %v", err)
	}
	return dir
}

// SetupTestRepoWithContent creates a test repository with specified files.
// The files map contains slash-separated relative paths to file contents.
func SetupTestRepoWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)
	WriteFiles(t, dir, files)
	return dir
}

// WriteFiles writes files under dir, creating parent directories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// ReadFile returns the content of a slash-separated path under dir.
func ReadFile(t *testing.T, dir, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// SkipIfNoShell skips the test if sh is not installed.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}
