package store

import (
	"testing"
	"time"

	"readquest/pkg/domain"
)

func TestMemoryStoreCatalogAndLinks(t *testing.T) {
	m := NewMemoryStore()
	book := domain.Book{ID: "b1", Title: "Dune", SourceType: domain.SourceGoogle}
	if err := m.SaveBook(book); err != nil {
		t.Fatalf("save book: %v", err)
	}
	// Saving again replaces, it does not duplicate.
	book.Title = "Dune (updated)"
	if err := m.SaveBook(book); err != nil {
		t.Fatalf("save book again: %v", err)
	}
	all, err := m.ListBooks()
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(all) != 1 || all[0].Title != "Dune (updated)" {
		t.Fatalf("catalog = %+v, want single updated entry", all)
	}

	link := domain.LibraryLink{UserID: domain.LocalUserID, BookID: "b1", AddedAt: time.Now()}
	if err := m.AddLibraryLink(link); err != nil {
		t.Fatalf("add link: %v", err)
	}
	has, err := m.HasLibraryLink(domain.LocalUserID, "b1")
	if err != nil || !has {
		t.Fatalf("link should exist, has=%v err=%v", has, err)
	}
	if err := m.RemoveLibraryLink(domain.LocalUserID, "b1"); err != nil {
		t.Fatalf("remove link: %v", err)
	}
	has, _ = m.HasLibraryLink(domain.LocalUserID, "b1")
	if has {
		t.Fatalf("link should be removed")
	}
	if _, ok, _ := m.GetBook("b1"); !ok {
		t.Fatalf("catalog entry must survive link removal")
	}
}

func TestMemoryStoreAppendOrderAndLatest(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := m.AppendSession(domain.Session{
			SessionID: string(rune('a' + i)),
			UserID:    domain.LocalUserID,
			BookID:    "b1",
			Minutes:   i + 1,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	latest, ok, err := m.LatestSession(domain.LocalUserID)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.SessionID != "c" {
		t.Fatalf("latest = %q, want the last appended", latest.SessionID)
	}

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var ids []string
	for s := range snap.SessionsFor(domain.LocalUserID) {
		ids = append(ids, s.SessionID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("sessions out of append order: %v", ids)
	}

	// The sequence is restartable.
	count := 0
	for range snap.SessionsFor(domain.LocalUserID) {
		count++
	}
	if count != 3 {
		t.Fatalf("second iteration yielded %d, want 3", count)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	m := NewMemoryStore()
	if err := m.AppendSession(domain.Session{SessionID: "s1", UserID: domain.LocalUserID, BookID: "b1", Minutes: 1, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap, _ := m.Snapshot()
	if err := m.AppendSession(domain.Session{SessionID: "s2", UserID: domain.LocalUserID, BookID: "b1", Minutes: 1, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("snapshot must not see later appends, got %d", len(snap.Sessions))
	}
}

func TestMemoryStoreFlushWritesBlob(t *testing.T) {
	blob := &captureBlob{}
	m := NewMemoryStoreWithBlob(blob)
	if err := m.AppendQuizResult(domain.QuizResult{ID: "q1", UserID: domain.LocalUserID, BookID: "b1", Score: 100, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(blob.saved.Quizzes) != 1 {
		t.Fatalf("flush should persist quiz results, got %+v", blob.saved.Quizzes)
	}
}

type captureBlob struct {
	saved Snapshot
}

func (c *captureBlob) Load() Snapshot { return NewSnapshot() }

func (c *captureBlob) Save(s Snapshot) error {
	c.saved = s
	return nil
}
