package pipeline

import (
	"os"
	"path/filepath"
)

// CleanDir removes regular files directly under dir, returning how many were
// deleted. Subdirectories are left alone. A missing dir is not an error; the
// sweep is best-effort maintenance, not part of task state.
func CleanDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
