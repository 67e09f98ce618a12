// Package manifest reads and bumps the project's semantic version manifest.
// The manifest is a JSON document with at least a "version" field of the form
// "<major>.<minor>.<patch>". Rewrites preserve every other field.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoVersion indicates the manifest has no "version" field.
var ErrNoVersion = errors.New("manifest has no version field")

// Version is a parsed semantic version triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "major.minor.patch" into a Version. Each component must
// be a plain non-negative integer.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q is not in major.minor.patch form", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (len(p) > 1 && p[0] == '0') {
			return Version{}, fmt.Errorf("version %q has invalid component %q", s, p)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the version in "major.minor.patch" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Tag returns the annotated tag name for this version, e.g. "v1.2.4".
func (v Version) Tag() string {
	return "v" + v.String()
}

// Next returns the version with patch incremented by one. Major and minor are
// never touched by a release.
func (v Version) Next() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
}

// File is a handle to a manifest on disk.
type File struct {
	path string
}

// NewFile returns a handle to the manifest at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the manifest location.
func (f *File) Path() string { return f.path }

// ReadVersion parses the manifest's version field.
func (f *File) ReadVersion() (Version, error) {
	fields, err := f.read()
	if err != nil {
		return Version{}, err
	}
	raw, ok := fields["version"]
	if !ok {
		return Version{}, fmt.Errorf("%s: %w", f.path, ErrNoVersion)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Version{}, fmt.Errorf("%s: version field is not a string: %w", f.path, err)
	}
	v, err := ParseVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%s: %w", f.path, err)
	}
	return v, nil
}

// WriteVersion rewrites the manifest with the given version, preserving all
// other fields. The write is a full read-modify-write: the document is decoded
// into raw messages so unrelated fields pass through untouched.
func (f *File) WriteVersion(v Version) error {
	fields, err := f.read()
	if err != nil {
		return err
	}
	quoted, err := json.Marshal(v.String())
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	fields["version"] = quoted

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	// Write atomically: temp file, then rename.
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename temp manifest: %w", err)
	}
	return nil
}

// read decodes the manifest into a raw field map.
func (f *File) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", f.path, err)
	}
	return fields, nil
}
