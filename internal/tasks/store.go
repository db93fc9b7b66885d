package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SessionFile persists a [RegistryState] between CLI invocations.
type SessionFile struct {
	path string
}

// NewSessionFile creates a [SessionFile] at path.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// Path returns the file location.
func (f *SessionFile) Path() string { return f.path }

// Load reads the saved state; a missing file is an empty state.
func (f *SessionFile) Load() (RegistryState, error) {
	var state RegistryState
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return RegistryState{}, fmt.Errorf("failed to parse session file %s: %w", f.path, err)
	}
	return state, nil
}

// Save writes state with owner-only permissions, replacing the file atomically.
func (f *SessionFile) Save(state RegistryState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Remove deletes the file. A missing file is not an error.
func (f *SessionFile) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
