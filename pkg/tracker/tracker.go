// Package tracker is the session lifecycle controller: it owns the open-book
// context and the in-progress session draft, and is the only writer to the
// event store. All invariants the store does not enforce (idempotent library
// add, minutes floor, append-only ordering, quiz backreference) live here.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"readquest/pkg/domain"
	"readquest/pkg/stats"
	"readquest/pkg/store"
)

type State int

const (
	StateIdle State = iota
	StateOpened
	StateInSession
	StateQuizPending
)

func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateInSession:
		return "in_session"
	case StateQuizPending:
		return "quiz_pending"
	}
	return "idle"
}

var (
	ErrNoBookOpen     = errors.New("no book open")
	ErrSessionRunning = errors.New("session already in progress")
	ErrNoSession      = errors.New("no session in progress")
	ErrQuizInFlight   = errors.New("quiz generation already in flight")
	ErrStaleAttempt   = errors.New("quiz attempt superseded")
	ErrNoQuizPending  = errors.New("no quiz pending")
)

// QuizGenerator is the quiz generation collaborator.
type QuizGenerator interface {
	Generate(ctx context.Context, text string, n int) ([]domain.Question, error)
}

// Attempt is a generated quiz awaiting answers. The token guards against a
// stale attempt committing after it was abandoned or superseded.
type Attempt struct {
	Token     uint64            `json:"token"`
	BookID    string            `json:"bookId"`
	Questions []domain.Question `json:"questions"`
}

// Tracker drives the Idle -> Opened -> InSession -> Idle lifecycle with the
// optional quiz branch after a session ends. All mutation happens from a
// single logical actor; the mutex only protects against the HTTP layer
// calling in from multiple connections.
type Tracker struct {
	mu    sync.Mutex
	store store.Store
	quiz  QuizGenerator
	now   func() time.Time
	newID func() string

	current *domain.Book
	draft   *domain.Session
	pending *Attempt
	genSeq  uint64
	genBusy bool
}

// Option overrides tracker defaults, mainly for tests.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDFunc injects the ID generator.
func WithIDFunc(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// New constructs the controller over its store and quiz collaborator.
func New(s store.Store, quiz QuizGenerator, opts ...Option) *Tracker {
	t := &Tracker{
		store: s,
		quiz:  quiz,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State reports the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	switch {
	case t.draft != nil:
		return StateInSession
	case t.pending != nil:
		return StateQuizPending
	case t.current != nil:
		return StateOpened
	default:
		return StateIdle
	}
}

// OpenBook sets the active book context. Valid from any state; re-opening
// while a session is in progress abandons the prior draft, which is never
// persisted.
func (t *Tracker) OpenBook(b domain.Book) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &b
	t.draft = nil
	t.pending = nil
	t.genSeq++
}

// AddToLibrary adds the book to the catalog and links it to the user.
// Idempotent: adding an already-linked book changes nothing.
func (t *Tracker) AddToLibrary(b domain.Book) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok, err := t.store.GetBook(b.ID); err != nil {
		return err
	} else if !ok {
		if err := t.store.SaveBook(b); err != nil {
			return err
		}
	}
	linked, err := t.store.HasLibraryLink(domain.LocalUserID, b.ID)
	if err != nil {
		return err
	}
	if !linked {
		if err := t.store.AddLibraryLink(domain.LibraryLink{
			UserID:  domain.LocalUserID,
			BookID:  b.ID,
			AddedAt: t.now(),
		}); err != nil {
			return err
		}
	}
	return t.store.Flush()
}

// RemoveFromLibrary deletes the user's link to the book. The catalog entry
// and all historical sessions and quiz results stay, so derived stats do not
// change.
func (t *Tracker) RemoveFromLibrary(bookID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.RemoveLibraryLink(domain.LocalUserID, bookID); err != nil {
		return err
	}
	return t.store.Flush()
}

// StartSession creates a draft session for the open book. The draft is held
// transiently by the controller and does not reach the store until ended.
func (t *Tracker) StartSession() (domain.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return domain.Session{}, ErrNoBookOpen
	}
	if t.draft != nil {
		return domain.Session{}, ErrSessionRunning
	}
	t.draft = &domain.Session{
		SessionID:    t.newID(),
		UserID:       domain.LocalUserID,
		BookID:       t.current.ID,
		FromLocation: t.fromLocationLocked(),
		CreatedAt:    t.now(),
	}
	return *t.draft, nil
}

// EndSession finalizes the draft: a started minute counts in full, and a
// session ended in under a minute still records one minute. The finalized
// session is appended and the lifecycle returns to the opened-book state.
func (t *Tracker) EndSession() (domain.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draft == nil {
		return domain.Session{}, ErrNoSession
	}
	sess := *t.draft
	elapsed := t.now().Sub(sess.CreatedAt)
	minutes := int((elapsed + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	sess.Minutes = minutes
	if err := t.store.AppendSession(sess); err != nil {
		return domain.Session{}, err
	}
	t.draft = nil
	if err := t.store.Flush(); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// BeginQuiz generates questions from sourceText via the adapter. At most one
// generation is in flight at a time; a second call while one is pending is
// rejected. Adapter failure aborts the branch with zero store mutation. A
// response arriving after the attempt was superseded is discarded.
func (t *Tracker) BeginQuiz(ctx context.Context, sourceText string, n int) (*Attempt, error) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return nil, ErrNoBookOpen
	}
	if t.genBusy {
		t.mu.Unlock()
		return nil, ErrQuizInFlight
	}
	t.genBusy = true
	t.genSeq++
	token := t.genSeq
	bookID := t.current.ID
	t.mu.Unlock()

	questions, err := t.quiz.Generate(ctx, sourceText, n)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.genBusy = false
	if token != t.genSeq {
		return nil, ErrStaleAttempt
	}
	if err != nil {
		return nil, err
	}
	t.pending = &Attempt{Token: token, BookID: bookID, Questions: questions}
	return t.pending, nil
}

// AbandonQuiz discards the pending attempt, if any. A generation still in
// flight will find its token stale and drop its result.
func (t *Tracker) AbandonQuiz() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	t.genSeq++
}

// SubmitAnswers scores the pending attempt and appends exactly one
// QuizResult, back-referencing the most recent session when one exists. The
// single-question flow yields 0 or 100; multiple questions score
// 100*correct/total rounded to nearest.
func (t *Tracker) SubmitAnswers(token uint64, choices []int) (domain.QuizResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return domain.QuizResult{}, ErrNoQuizPending
	}
	if token != t.pending.Token {
		return domain.QuizResult{}, ErrStaleAttempt
	}
	attempt := t.pending

	correct, total := 0, len(attempt.Questions)
	for i, q := range attempt.Questions {
		if i < len(choices) && choices[i] == q.AnswerIndex {
			correct++
		}
	}
	score := 0
	if total > 0 {
		score = (100*correct + total/2) / total
	}

	result := domain.QuizResult{
		ID:        t.newID(),
		UserID:    domain.LocalUserID,
		BookID:    attempt.BookID,
		Score:     score,
		CreatedAt: t.now(),
	}
	if latest, ok, err := t.store.LatestSession(domain.LocalUserID); err != nil {
		return domain.QuizResult{}, err
	} else if ok {
		result.SessionID = latest.SessionID
	}
	if err := t.store.AppendQuizResult(result); err != nil {
		return domain.QuizResult{}, err
	}
	t.pending = nil
	if err := t.store.Flush(); err != nil {
		return domain.QuizResult{}, err
	}
	return result, nil
}

// Stats recomputes the derived metrics from the current store state.
func (t *Tracker) Stats() (domain.Stats, error) {
	snap, err := t.store.Snapshot()
	if err != nil {
		return domain.Stats{}, err
	}
	return stats.Compute(snap, t.now()), nil
}

// LibraryBook joins a library link with its catalog entry for display.
type LibraryBook struct {
	domain.Book
	LastLocation    string    `json:"lastLocation"`
	PercentComplete int       `json:"percent"`
	AddedAt         time.Time `json:"addedAt"`
}

// Library returns the user's linked books joined with the catalog. Links
// whose catalog entry is missing (stale data) are tolerated and skipped.
func (t *Tracker) Library() ([]LibraryBook, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	links, err := t.store.ListLibrary(domain.LocalUserID)
	if err != nil {
		return nil, err
	}
	out := make([]LibraryBook, 0, len(links))
	for _, l := range links {
		b, ok, err := t.store.GetBook(l.BookID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, LibraryBook{
			Book:            b,
			LastLocation:    l.LastLocation,
			PercentComplete: l.PercentComplete,
			AddedAt:         l.AddedAt,
		})
	}
	return out, nil
}

// CurrentBook returns the open book context, if any.
func (t *Tracker) CurrentBook() (domain.Book, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return domain.Book{}, false
	}
	return *t.current, true
}

// fromLocationLocked captures the reader position for a starting session:
// the library link's last location when present, else the book's own locator.
func (t *Tracker) fromLocationLocked() string {
	links, err := t.store.ListLibrary(domain.LocalUserID)
	if err == nil {
		for _, l := range links {
			if l.BookID == t.current.ID && l.LastLocation != "" {
				return l.LastLocation
			}
		}
	}
	return t.current.SourceLocator
}
