package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore keeps the whole snapshot in one JSON file under a well-known
// path. Parse failures are recovered silently into an empty valid snapshot:
// for this local-only store availability wins over strict durability.
type FileBlobStore struct {
	path string
}

// NewFileBlobStore creates the parent directory if missing.
func NewFileBlobStore(path string) (*FileBlobStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("blob path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &FileBlobStore{path: path}, nil
}

// Load reads the blob, returning a fresh snapshot when the file is absent,
// unreadable, or fails to parse.
func (f *FileBlobStore) Load() Snapshot {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state blob unreadable, starting fresh", "path", f.path, "err", err)
		}
		return NewSnapshot()
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("state blob corrupt, starting fresh", "path", f.path, "err", err)
		return NewSnapshot()
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	if snap.User.ID == "" {
		snap.User = NewSnapshot().User
	}
	return snap
}

// Save serializes to a temp file in the same directory and renames it over
// the target, so readers never observe a half-written blob.
func (f *FileBlobStore) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".rq-state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap blob: %w", err)
	}
	return nil
}
