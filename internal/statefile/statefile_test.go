package statefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	want := Snapshot{
		UpdatedAt: time.Now().UTC(),
		Sessions: []SessionState{
			{ID: "s1", Title: "fix parser", State: "retrying", Retries: 2, LastError: "type error on line 5"},
			{ID: "s2", State: "active", LastVersion: "1.4.0"},
		},
	}
	if err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil {
		t.Fatal("Read returned nil snapshot for existing file")
	}
	if len(got.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(got.Sessions))
	}
	if got.Sessions[0] != want.Sessions[0] {
		t.Errorf("session[0] = %+v, want %+v", got.Sessions[0], want.Sessions[0])
	}
	if got.Sessions[1].LastVersion != "1.4.0" {
		t.Errorf("LastVersion = %q, want 1.4.0", got.Sessions[1].LastVersion)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if err := w.Write(Snapshot{UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName+".tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after write")
	}
}

func TestReadMissingFile(t *testing.T) {
	snap, err := Read(t.TempDir())
	if err != nil {
		t.Fatalf("Read on empty dir: %v", err)
	}
	if snap != nil {
		t.Errorf("snapshot = %+v, want nil for missing file", snap)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if err := w.Write(Snapshot{UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Error("snapshot still present after Clear")
	}

	// Clearing twice is fine.
	if err := w.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestReadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(dir); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}
