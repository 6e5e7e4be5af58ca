package store

import (
	"sync"

	"readquest/pkg/domain"
)

// MemoryStore keeps the snapshot in-process, optionally backed by a BlobStore
// that it loads on construction and writes on Flush.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
	blob BlobStore
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: NewSnapshot()}
}

// NewMemoryStoreWithBlob loads existing state from blob (fail-soft) and
// flushes back to it.
func NewMemoryStoreWithBlob(blob BlobStore) *MemoryStore {
	return &MemoryStore{snap: blob.Load(), blob: blob}
}

// SaveBook stores or replaces a catalog entry, keeping insertion order.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.snap.Books {
		if existing.ID == b.ID {
			m.snap.Books[i] = b
			return nil
		}
	}
	m.snap.Books = append(m.snap.Books, b)
	return nil
}

// GetBook retrieves a catalog entry by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.snap.BookByID(id)
	return b, ok, nil
}

// ListBooks returns the catalog in insertion order.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Book(nil), m.snap.Books...), nil
}

// AddLibraryLink appends a link. Uniqueness per (user, book) is enforced by
// the caller, matching the tracker's idempotent add semantics.
func (m *MemoryStore) AddLibraryLink(l domain.LibraryLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Library = append(m.snap.Library, l)
	return nil
}

// HasLibraryLink reports whether the (user, book) link exists.
func (m *MemoryStore) HasLibraryLink(userID, bookID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.snap.Library {
		if l.UserID == userID && l.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}

// RemoveLibraryLink deletes the link only. The catalog entry and historical
// sessions and quiz results are preserved.
func (m *MemoryStore) RemoveLibraryLink(userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	filtered := m.snap.Library[:0]
	for _, l := range m.snap.Library {
		if l.UserID == userID && l.BookID == bookID {
			continue
		}
		filtered = append(filtered, l)
	}
	m.snap.Library = filtered
	return nil
}

// ListLibrary returns the user's links in added order.
func (m *MemoryStore) ListLibrary(userID string) ([]domain.LibraryLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.LibraryLink
	for l := range m.snap.LibraryFor(userID) {
		out = append(out, l)
	}
	return out, nil
}

// AppendSession adds a finalized session to the end of the log.
func (m *MemoryStore) AppendSession(s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Sessions = append(m.snap.Sessions, s)
	return nil
}

// AppendQuizResult adds a quiz result to the end of the log.
func (m *MemoryStore) AppendQuizResult(q domain.QuizResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Quizzes = append(m.snap.Quizzes, q)
	return nil
}

// LatestSession returns the most recently appended session for the user.
func (m *MemoryStore) LatestSession(userID string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.snap.Sessions) - 1; i >= 0; i-- {
		if m.snap.Sessions[i].UserID == userID {
			return m.snap.Sessions[i], true, nil
		}
	}
	return domain.Session{}, false, nil
}

// Snapshot returns a deep copy of the current state.
func (m *MemoryStore) Snapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), nil
}

// Flush writes the snapshot to the backing blob, if any.
func (m *MemoryStore) Flush() error {
	m.mu.RLock()
	snap := m.snap.Clone()
	blob := m.blob
	m.mu.RUnlock()
	if blob == nil {
		return nil
	}
	return blob.Save(snap)
}
