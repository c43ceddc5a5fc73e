package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// BaseTime is a fixed reference point for fixture modification times.
var BaseTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// WriteFile creates root/rel (and its parent directories) with the given
// content and modification time.
func WriteFile(t *testing.T, root, rel, content string, mtime time.Time) string {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create fixture dir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", rel, err)
	}
	SetModTime(t, root, rel, mtime)
	return full
}

// SetModTime changes the access and modification time of root/rel.
func SetModTime(t *testing.T, root, rel string, mtime time.Time) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.Chtimes(full, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", rel, err)
	}
}

// WriteScript creates an executable /bin/sh script at root/rel.
func WriteScript(t *testing.T, root, rel, body string) string {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create script dir: %v", err)
	}
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(full, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write script %s: %v", rel, err)
	}
	return full
}

// Exists reports whether root/rel exists.
func Exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// ReadFile returns the content of root/rel, failing the test if unreadable.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}
