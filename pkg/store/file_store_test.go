package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"readquest/pkg/domain"
)

func TestLoadMissingBlobStartsFresh(t *testing.T) {
	blob, err := NewFileBlobStore(filepath.Join(t.TempDir(), "rq-state.json"))
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	snap := blob.Load()
	if snap.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version = %d, want %d", snap.SchemaVersion, SchemaVersion)
	}
	if snap.User.ID != domain.LocalUserID {
		t.Fatalf("user = %q, want %q", snap.User.ID, domain.LocalUserID)
	}
	if len(snap.Sessions) != 0 || len(snap.Books) != 0 {
		t.Fatalf("fresh snapshot should be empty")
	}
}

func TestLoadCorruptBlobRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rq-state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt blob: %v", err)
	}
	blob, err := NewFileBlobStore(path)
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	snap := blob.Load()
	if snap.SchemaVersion != SchemaVersion || snap.User.ID != domain.LocalUserID {
		t.Fatalf("corrupt blob should recover to a fresh snapshot, got %+v", snap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rq-state.json")
	blob, err := NewFileBlobStore(path)
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}

	snap := NewSnapshot()
	snap.Books = append(snap.Books, domain.Book{ID: "b1", Title: "Dune", Authors: []string{"Frank Herbert"}, SourceType: domain.SourceGoogle})
	snap.Sessions = append(snap.Sessions, domain.Session{
		SessionID: "s1",
		UserID:    domain.LocalUserID,
		BookID:    "b1",
		Minutes:   12,
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	if err := blob.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := blob.Load()
	if len(got.Books) != 1 || got.Books[0].Title != "Dune" {
		t.Fatalf("books round trip failed: %+v", got.Books)
	}
	if len(got.Sessions) != 1 || got.Sessions[0].Minutes != 12 {
		t.Fatalf("sessions round trip failed: %+v", got.Sessions)
	}

	// No temp files left behind after a successful swap.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the blob file, found %d entries", len(entries))
	}
}

func TestNewFileBlobStoreRequiresPath(t *testing.T) {
	if _, err := NewFileBlobStore("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}
