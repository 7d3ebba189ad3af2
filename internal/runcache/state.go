// Package runcache persists small cross-run state: the last agent provider
// and its resume token, scoped to the gate policy that produced them.
package runcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const stateVersion = 1

// State is the persisted cross-run state.
type State struct {
	Version     int       `json:"version"`
	Provider    string    `json:"provider,omitempty"`
	ResumeToken string    `json:"resume_token,omitempty"`
	PolicyKey   string    `json:"policy_key,omitempty"`
	SavedAt     time.Time `json:"saved_at"`
}

// DefaultPath returns the state file location under the user cache dir.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache dir: %w", err)
	}
	return filepath.Join(dir, "arl", "state.json"), nil
}

// Load reads the state file. A missing, malformed, or version-mismatched
// file is treated as no prior state, never as an error.
func Load(path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}
	}
	if s.Version != stateVersion {
		return State{}
	}
	return s
}

// Save writes the state file, creating the directory if needed.
func Save(path string, s State) error {
	s.Version = stateVersion
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
