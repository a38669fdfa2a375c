package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "keep"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := CleanDir(dir)
	if err != nil {
		t.Fatalf("CleanDir: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep")); err != nil {
		t.Fatalf("subdirectory should survive: %v", err)
	}
}

func TestCleanDirMissing(t *testing.T) {
	t.Parallel()
	removed, err := CleanDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || removed != 0 {
		t.Fatalf("missing dir should be a no-op, got removed=%d err=%v", removed, err)
	}
}
