// Package state provides the small atomic-JSON-file persistence helper
// used throughout the hub (sessions, permissions, user registry), grounded
// on picoclaw's pkg/state topic-mapping store: write to a temp file, then
// rename over the target so a crash never leaves a half-written document.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveAtomic marshals v as indented JSON and atomically replaces path's
// contents with it.
func SaveAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file for %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads path and unmarshals it into v. Returns os.ErrNotExist
// (wrapped) if the file does not exist, so callers can treat "missing" as
// a distinct case from "corrupt" per spec §7's persistence error taxonomy.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
