package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes f to path through a temporary file and a rename.
func Save(path string, f *File) error {
	if f == nil || len(f.Events) == 0 {
		return ErrEmptyRecording
	}
	if err := f.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recording: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write recording tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename recording: %w", err)
	}

	return nil
}
