package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempPath returns the staging file for target: config.json is staged as
// config.tmp, matching the other debrief writers.
func TempPath(target string) string {
	ext := filepath.Ext(target)
	if ext == "" {
		return target + ".tmp"
	}
	return strings.TrimSuffix(target, ext) + ".tmp"
}

// WriteFile replaces target with data atomically. Callers writing shared
// files must hold the target's Lock, since the temp name is fixed.
func WriteFile(target string, data []byte, perm os.FileMode) error {
	tmpPath := TempPath(target)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(target), err)
	}
	return nil
}
