package store

import (
	"iter"

	"readquest/pkg/domain"
)

// SchemaVersion is written into every persisted blob so future revisions can
// migrate old state instead of discarding it.
const SchemaVersion = 1

// Snapshot is the full single-user state: two reference tables (catalog,
// library) and two append-only event logs (sessions, quiz results). The store
// performs no uniqueness or foreign-key enforcement; the lifecycle tracker is
// responsible for those invariants at append time.
type Snapshot struct {
	SchemaVersion int                  `json:"schemaVersion"`
	User          domain.User          `json:"user"`
	Books         []domain.Book        `json:"books"`
	Library       []domain.LibraryLink `json:"library"`
	Sessions      []domain.Session     `json:"sessions"`
	Quizzes       []domain.QuizResult  `json:"quizzes"`
}

// NewSnapshot returns an empty, schema-valid snapshot for the local user.
func NewSnapshot() Snapshot {
	return Snapshot{
		SchemaVersion: SchemaVersion,
		User:          domain.User{ID: domain.LocalUserID, DisplayName: "You"},
	}
}

// Clone deep-copies the snapshot so callers can hold it without racing the
// store's own slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Books = append([]domain.Book(nil), s.Books...)
	out.Library = append([]domain.LibraryLink(nil), s.Library...)
	out.Sessions = append([]domain.Session(nil), s.Sessions...)
	out.Quizzes = append([]domain.QuizResult(nil), s.Quizzes...)
	return out
}

// SessionsFor yields the user's sessions in append order. The sequence is
// lazy and restartable.
func (s Snapshot) SessionsFor(userID string) iter.Seq[domain.Session] {
	return func(yield func(domain.Session) bool) {
		for _, sess := range s.Sessions {
			if sess.UserID != userID {
				continue
			}
			if !yield(sess) {
				return
			}
		}
	}
}

// QuizResultsFor yields the user's quiz results in append order.
func (s Snapshot) QuizResultsFor(userID string) iter.Seq[domain.QuizResult] {
	return func(yield func(domain.QuizResult) bool) {
		for _, q := range s.Quizzes {
			if q.UserID != userID {
				continue
			}
			if !yield(q) {
				return
			}
		}
	}
}

// LibraryFor yields the user's library links in added order.
func (s Snapshot) LibraryFor(userID string) iter.Seq[domain.LibraryLink] {
	return func(yield func(domain.LibraryLink) bool) {
		for _, l := range s.Library {
			if l.UserID != userID {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// BookByID looks up a catalog entry.
func (s Snapshot) BookByID(id string) (domain.Book, bool) {
	for _, b := range s.Books {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Book{}, false
}
