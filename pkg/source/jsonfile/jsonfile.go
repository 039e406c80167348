// Package jsonfile reads and writes datasets as JSON snapshot files.
// Writes are atomic: the snapshot goes to a temporary file that is renamed
// over the target, so a crash never leaves a truncated snapshot behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bank-analytics/pkg/schema"
)

// FormatVersion is written to Meta.Version by Save.
const FormatVersion = 1

// Meta describes a snapshot file.
type Meta struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Note    string    `json:"note,omitempty"`
}

// Snapshot is the on-disk layout: a meta header followed by the four
// entity arrays.
type Snapshot struct {
	Meta Meta `json:"meta"`
	schema.Dataset
}

// File is a source backed by one snapshot file.
type File struct {
	path string
}

// New returns a source reading path.
func New(path string) *File {
	return &File{path: path}
}

// Name implements source.Source.
func (f *File) Name() string {
	return "json"
}

// Load implements source.Source.
func (f *File) Load(ctx context.Context) (schema.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return schema.Dataset{}, err
	}
	snap, err := Load(f.path)
	if err != nil {
		return schema.Dataset{}, err
	}
	return snap.Dataset, nil
}

// Load reads and decodes the snapshot at path.
// Unknown fields are rejected so that a misspelled column is not silently
// read as a zero value.
func Load(path string) (Snapshot, error) {
	var snap Snapshot

	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("jsonfile: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return snap, fmt.Errorf("jsonfile: decode %s: %w", filepath.Base(path), err)
	}
	if snap.Meta.Version > FormatVersion {
		return snap, fmt.Errorf("jsonfile: %s has version %d, newest supported is %d",
			filepath.Base(path), snap.Meta.Version, FormatVersion)
	}
	return snap, nil
}

// Save writes ds to path atomically, stamping the meta header.
func Save(path string, ds schema.Dataset, note string) error {
	snap := Snapshot{
		Meta: Meta{
			Version: FormatVersion,
			SavedAt: time.Now().UTC(),
			Note:    note,
		},
		Dataset: ds,
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("jsonfile: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("jsonfile: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("jsonfile: %w", err)
	}

	return os.Rename(tmp, path)
}
