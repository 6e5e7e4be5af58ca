// Package store persists the reading tracker state: a book catalog, library
// links, and the append-only session and quiz-result logs. Two backends are
// provided: MemoryStore (optionally flushed to a single JSON blob on disk)
// and GormStore (Postgres).
package store

import (
	"readquest/pkg/domain"
)

// Store defines persistence operations over the tracker state. Appended
// records are immutable; nothing is ever deleted except library links.
// Uniqueness of links and catalog entries is the caller's responsibility.
type Store interface {
	// catalog
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)

	// library links
	AddLibraryLink(domain.LibraryLink) error
	HasLibraryLink(userID, bookID string) (bool, error)
	RemoveLibraryLink(userID, bookID string) error
	ListLibrary(userID string) ([]domain.LibraryLink, error)

	// event logs
	AppendSession(domain.Session) error
	AppendQuizResult(domain.QuizResult) error
	LatestSession(userID string) (domain.Session, bool, error)

	// Snapshot returns a consistent copy of the full state for derivation.
	Snapshot() (Snapshot, error)

	// Flush persists buffered state. A no-op for write-through backends.
	Flush() error
}

// BlobStore loads and saves the serialized single-user state blob.
type BlobStore interface {
	// Load never fails on an absent or corrupt blob; it recovers into a
	// fresh, empty, schema-valid snapshot.
	Load() Snapshot
	// Save must be atomic from the caller's point of view: a partial write
	// must not leave a structurally invalid blob behind.
	Save(Snapshot) error
}
