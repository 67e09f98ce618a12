package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"1.2.3", Version{1, 2, 3}, false},
		{"0.0.0", Version{0, 0, 0}, false},
		{"2.0.9", Version{2, 0, 9}, false},
		{"10.20.30", Version{10, 20, 30}, false},
		{"1.2", Version{}, true},
		{"1.2.3.4", Version{}, true},
		{"1.2.x", Version{}, true},
		{"1.2.-3", Version{}, true},
		{"1.2.03", Version{}, true},
		{"", Version{}, true},
		{"v1.2.3", Version{}, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVersion(%q) expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVersionNext_IncrementsOnlyPatch(t *testing.T) {
	v := Version{Major: 1, Minor: 2, Patch: 3}
	next := v.Next()
	if next != (Version{Major: 1, Minor: 2, Patch: 4}) {
		t.Errorf("Next(%v) = %v, want {1 2 4}", v, next)
	}
	// The receiver is untouched.
	if v != (Version{Major: 1, Minor: 2, Patch: 3}) {
		t.Errorf("Next mutated receiver: %v", v)
	}
}

func TestVersionStringAndTag(t *testing.T) {
	v := Version{Major: 1, Minor: 2, Patch: 4}
	if got := v.String(); got != "1.2.4" {
		t.Errorf("String() = %q, want %q", got, "1.2.4")
	}
	if got := v.Tag(); got != "v1.2.4" {
		t.Errorf("Tag() = %q, want %q", got, "v1.2.4")
	}
}

func writeManifest(t *testing.T, content string) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return NewFile(path)
}

func TestReadVersion(t *testing.T) {
	f := writeManifest(t, `{"name":"proj","version":"2.0.9","scripts":{"build":"make"}}`)
	v, err := f.ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if v != (Version{Major: 2, Minor: 0, Patch: 9}) {
		t.Errorf("ReadVersion = %v, want {2 0 9}", v)
	}
}

func TestReadVersion_MissingField(t *testing.T) {
	f := writeManifest(t, `{"name":"proj"}`)
	_, err := f.ReadVersion()
	if !errors.Is(err, ErrNoVersion) {
		t.Errorf("expected ErrNoVersion, got %v", err)
	}
}

func TestReadVersion_MalformedVersion(t *testing.T) {
	tests := []string{
		`{"version":"not-semver"}`,
		`{"version":42}`,
		`not json at all`,
	}
	for _, content := range tests {
		f := writeManifest(t, content)
		if _, err := f.ReadVersion(); err == nil {
			t.Errorf("ReadVersion on %q expected error", content)
		}
	}
}

func TestReadVersion_MissingFile(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "absent.json"))
	if _, err := f.ReadVersion(); err == nil {
		t.Error("expected error for missing manifest file")
	}
}

func TestWriteVersion_PreservesOtherFields(t *testing.T) {
	f := writeManifest(t, `{
  "name": "proj",
  "version": "2.0.9",
  "scripts": {"build": "make"},
  "private": true
}`)

	if err := f.WriteVersion(Version{Major: 2, Minor: 0, Patch: 10}); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}

	data, err := os.ReadFile(f.Path())
	if err != nil {
		t.Fatalf("re-reading manifest: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("re-parsing manifest: %v", err)
	}

	var version string
	if err := json.Unmarshal(fields["version"], &version); err != nil {
		t.Fatalf("version field: %v", err)
	}
	if version != "2.0.10" {
		t.Errorf("version = %q, want %q", version, "2.0.10")
	}

	var name string
	if err := json.Unmarshal(fields["name"], &name); err != nil || name != "proj" {
		t.Errorf("name field not preserved: %q, %v", name, err)
	}
	if string(fields["private"]) != "true" {
		t.Errorf("private field not preserved: %s", fields["private"])
	}
	var scripts map[string]string
	if err := json.Unmarshal(fields["scripts"], &scripts); err != nil || scripts["build"] != "make" {
		t.Errorf("scripts field not preserved: %v, %v", scripts, err)
	}

	// Round-trip: the rewritten manifest parses back.
	v, err := f.ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion after write: %v", err)
	}
	if v != (Version{Major: 2, Minor: 0, Patch: 10}) {
		t.Errorf("ReadVersion after write = %v, want {2 0 10}", v)
	}
}

func TestWriteVersion_LeavesNoTempFile(t *testing.T) {
	f := writeManifest(t, `{"version":"1.0.0"}`)
	if err := f.WriteVersion(Version{Major: 1, Minor: 0, Patch: 1}); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	if _, err := os.Stat(f.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}
