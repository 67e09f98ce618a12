// Package statefile persists a polling snapshot of controller sessions.
// The controller rewrites the file after every transition and shipboard polls
// it; writes are atomic so readers never observe a torn document.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the snapshot file written into the controller's working directory.
const FileName = ".autoship-state.json"

// SessionState is the externally visible state of one session.
type SessionState struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	State       string    `json:"state"` // pending, building, retrying, active, errored
	Retries     int       `json:"retries"`
	LastVersion string    `json:"last_version,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot is the full document written to disk.
type Snapshot struct {
	UpdatedAt time.Time      `json:"updated_at"`
	Sessions  []SessionState `json:"sessions"`
}

// Writer manages the snapshot file for one working directory.
type Writer struct {
	path string
}

// NewWriter creates a Writer rooted at workdir.
func NewWriter(workdir string) *Writer {
	return &Writer{path: filepath.Join(workdir, FileName)}
}

// Write replaces the snapshot on disk. Atomic: temp file, then rename.
func (w *Writer) Write(s Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot file (called on controller shutdown).
func (w *Writer) Clear() error {
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Read loads the snapshot for workdir. A missing file returns (nil, nil):
// no controller is running there.
func Read(workdir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(workdir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &s, nil
}
