package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"readquest/pkg/apperr"
	"readquest/pkg/domain"
	"readquest/pkg/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeQuiz struct {
	questions []domain.Question
	err       error
	calls     int
	block     chan struct{}
}

func (f *fakeQuiz) Generate(ctx context.Context, text string, n int) ([]domain.Question, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	return f.questions, f.err
}

func newTestTracker(t *testing.T, q QuizGenerator) (*Tracker, *store.MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	mem := store.NewMemoryStore()
	seq := 0
	trk := New(mem, q,
		WithClock(clock.Now),
		WithIDFunc(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	return trk, mem, clock
}

func testBook(id string) domain.Book {
	return domain.Book{ID: id, Title: "Book " + id, Authors: []string{"A. Uthor"}, SourceType: domain.SourceGoogle}
}

func TestAddToLibraryIdempotent(t *testing.T) {
	trk, mem, _ := newTestTracker(t, &fakeQuiz{})
	book := testBook("b1")

	if err := trk.AddToLibrary(book); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := trk.AddToLibrary(book); err != nil {
		t.Fatalf("second add: %v", err)
	}

	snap, err := mem.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Books) != 1 {
		t.Fatalf("catalog entries = %d, want 1", len(snap.Books))
	}
	if len(snap.Library) != 1 {
		t.Fatalf("library links = %d, want 1", len(snap.Library))
	}
}

func TestStartSessionRequiresOpenBook(t *testing.T) {
	trk, mem, _ := newTestTracker(t, &fakeQuiz{})
	if _, err := trk.StartSession(); !errors.Is(err, ErrNoBookOpen) {
		t.Fatalf("err = %v, want ErrNoBookOpen", err)
	}
	snap, _ := mem.Snapshot()
	if len(snap.Sessions) != 0 {
		t.Fatalf("no session should be persisted")
	}
}

func TestEndSessionWithoutStartRejected(t *testing.T) {
	trk, _, _ := newTestTracker(t, &fakeQuiz{})
	trk.OpenBook(testBook("b1"))
	if _, err := trk.EndSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestMinutesFloorShortSession(t *testing.T) {
	trk, mem, clock := newTestTracker(t, &fakeQuiz{})
	trk.OpenBook(testBook("b1"))
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(10 * time.Second)
	sess, err := trk.EndSession()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if sess.Minutes != 1 {
		t.Fatalf("minutes = %d, want 1 (never 0)", sess.Minutes)
	}
	snap, _ := mem.Snapshot()
	if len(snap.Sessions) != 1 || snap.Sessions[0].Minutes != 1 {
		t.Fatalf("persisted session wrong: %+v", snap.Sessions)
	}
}

func TestStartedMinuteCountsInFull(t *testing.T) {
	trk, _, clock := newTestTracker(t, &fakeQuiz{})
	trk.OpenBook(testBook("b1"))
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(125 * time.Second)
	sess, err := trk.EndSession()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if sess.Minutes != 3 {
		t.Fatalf("minutes = %d, want 3", sess.Minutes)
	}
}

func TestDoubleStartRejected(t *testing.T) {
	trk, _, _ := newTestTracker(t, &fakeQuiz{})
	trk.OpenBook(testBook("b1"))
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := trk.StartSession(); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("err = %v, want ErrSessionRunning", err)
	}
}

func TestReopenDiscardsDraft(t *testing.T) {
	trk, mem, clock := newTestTracker(t, &fakeQuiz{})
	trk.OpenBook(testBook("b1"))
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(5 * time.Minute)

	// Opening another book abandons the unterminated draft.
	trk.OpenBook(testBook("b2"))
	if _, err := trk.EndSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession after reopen", err)
	}
	snap, _ := mem.Snapshot()
	if len(snap.Sessions) != 0 {
		t.Fatalf("abandoned draft must never be persisted, got %+v", snap.Sessions)
	}
}

func TestRemovalPreservesHistory(t *testing.T) {
	trk, mem, clock := newTestTracker(t, &fakeQuiz{})
	book := testBook("b1")
	if err := trk.AddToLibrary(book); err != nil {
		t.Fatalf("add: %v", err)
	}
	trk.OpenBook(book)
	for i := 0; i < 2; i++ {
		if _, err := trk.StartSession(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		clock.Advance(10 * time.Minute)
		if _, err := trk.EndSession(); err != nil {
			t.Fatalf("end %d: %v", i, err)
		}
	}

	before, err := trk.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if err := trk.RemoveFromLibrary(book.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	after, err := trk.Stats()
	if err != nil {
		t.Fatalf("stats after removal: %v", err)
	}
	if before.XP != after.XP || before.WeeklyMinutes != after.WeeklyMinutes || before.Streak != after.Streak {
		t.Fatalf("stats changed after removal: before=%+v after=%+v", before, after)
	}

	library, err := trk.Library()
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	if len(library) != 0 {
		t.Fatalf("book should be gone from library view")
	}
	snap, _ := mem.Snapshot()
	if len(snap.Sessions) != 2 {
		t.Fatalf("sessions must survive link removal, got %d", len(snap.Sessions))
	}
	if _, ok := snap.BookByID(book.ID); !ok {
		t.Fatalf("catalog entry must survive link removal")
	}
}

func TestEndToEndScenario(t *testing.T) {
	trk, _, clock := newTestTracker(t, &fakeQuiz{})
	trk.OpenBook(testBook("b1"))
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(125 * time.Second)
	if _, err := trk.EndSession(); err != nil {
		t.Fatalf("end: %v", err)
	}
	clock.Advance(time.Second)

	got, err := trk.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.WeeklyMinutes != 3 {
		t.Fatalf("weeklyMinutes = %d, want 3", got.WeeklyMinutes)
	}
	if got.XP != 2 {
		t.Fatalf("xp = %d, want 2", got.XP)
	}
	if got.Streak != 1 {
		t.Fatalf("streak = %d, want 1", got.Streak)
	}
	if got.QuizAccuracy != 0 {
		t.Fatalf("quizAccuracy = %d, want 0 before any quiz", got.QuizAccuracy)
	}
}

func singleQuestion() []domain.Question {
	return []domain.Question{{
		Prompt:      "Which option is correct?",
		Choices:     []string{"A", "B", "C", "D"},
		AnswerIndex: 2,
		Explanation: "C is right",
	}}
}

func TestQuizFlowCommitsOneResult(t *testing.T) {
	q := &fakeQuiz{questions: singleQuestion()}
	trk, mem, clock := newTestTracker(t, q)
	book := testBook("b1")
	trk.OpenBook(book)
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(2 * time.Minute)
	sess, err := trk.EndSession()
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	attempt, err := trk.BeginQuiz(context.Background(), "some paragraph", 1)
	if err != nil {
		t.Fatalf("begin quiz: %v", err)
	}
	if len(attempt.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(attempt.Questions))
	}

	result, err := trk.SubmitAnswers(attempt.Token, []int{2})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("score = %d, want 100", result.Score)
	}
	if result.SessionID != sess.SessionID {
		t.Fatalf("result should back-reference the latest session")
	}

	snap, _ := mem.Snapshot()
	if len(snap.Quizzes) != 1 {
		t.Fatalf("quiz results = %d, want exactly 1", len(snap.Quizzes))
	}

	// Wrong answer on a fresh attempt scores 0.
	attempt2, err := trk.BeginQuiz(context.Background(), "more text", 1)
	if err != nil {
		t.Fatalf("begin second quiz: %v", err)
	}
	result2, err := trk.SubmitAnswers(attempt2.Token, []int{0})
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if result2.Score != 0 {
		t.Fatalf("score = %d, want 0", result2.Score)
	}
}

func TestMultiQuestionScoring(t *testing.T) {
	questions := []domain.Question{
		{Prompt: "q1", Choices: []string{"A", "B", "C", "D"}, AnswerIndex: 0},
		{Prompt: "q2", Choices: []string{"A", "B", "C", "D"}, AnswerIndex: 1},
		{Prompt: "q3", Choices: []string{"A", "B", "C", "D"}, AnswerIndex: 2},
	}
	trk, _, _ := newTestTracker(t, &fakeQuiz{questions: questions})
	trk.OpenBook(testBook("b1"))

	attempt, err := trk.BeginQuiz(context.Background(), "text", 3)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	result, err := trk.SubmitAnswers(attempt.Token, []int{0, 1, 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 67 {
		t.Fatalf("score = %d, want 67 (2 of 3, rounded)", result.Score)
	}
}

func TestQuizFailureLeavesStoreUntouched(t *testing.T) {
	q := &fakeQuiz{err: apperr.New(apperr.KindUpstreamUnavailable, "provider down")}
	trk, mem, _ := newTestTracker(t, q)
	trk.OpenBook(testBook("b1"))

	if _, err := trk.BeginQuiz(context.Background(), "text", 1); err == nil {
		t.Fatalf("expected adapter failure to propagate")
	}
	snap, _ := mem.Snapshot()
	if len(snap.Quizzes) != 0 {
		t.Fatalf("failed quiz must not mutate the store")
	}
	if trk.State() != StateOpened {
		t.Fatalf("state = %v, want opened after aborted quiz branch", trk.State())
	}
}

func TestQuizSingleInFlight(t *testing.T) {
	q := &fakeQuiz{questions: singleQuestion(), block: make(chan struct{})}
	trk, _, _ := newTestTracker(t, q)
	trk.OpenBook(testBook("b1"))

	done := make(chan error, 1)
	go func() {
		_, err := trk.BeginQuiz(context.Background(), "text", 1)
		done <- err
	}()

	// Wait for the first call to reach the generator.
	for i := 0; q.calls == 0 && i < 100; i++ {
		time.Sleep(time.Millisecond)
	}

	if _, err := trk.BeginQuiz(context.Background(), "text", 1); !errors.Is(err, ErrQuizInFlight) {
		t.Fatalf("err = %v, want ErrQuizInFlight", err)
	}

	close(q.block)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
}

func TestAbandonedQuizResponseDiscarded(t *testing.T) {
	q := &fakeQuiz{questions: singleQuestion(), block: make(chan struct{})}
	trk, mem, _ := newTestTracker(t, q)
	trk.OpenBook(testBook("b1"))

	done := make(chan error, 1)
	go func() {
		_, err := trk.BeginQuiz(context.Background(), "text", 1)
		done <- err
	}()
	for i := 0; q.calls == 0 && i < 100; i++ {
		time.Sleep(time.Millisecond)
	}

	// Caller navigates away before the response arrives.
	trk.AbandonQuiz()
	close(q.block)

	if err := <-done; !errors.Is(err, ErrStaleAttempt) {
		t.Fatalf("err = %v, want ErrStaleAttempt", err)
	}
	snap, _ := mem.Snapshot()
	if len(snap.Quizzes) != 0 {
		t.Fatalf("stale response must not reach the store")
	}
}

func TestSubmitStaleTokenRejected(t *testing.T) {
	q := &fakeQuiz{questions: singleQuestion()}
	trk, _, _ := newTestTracker(t, q)
	trk.OpenBook(testBook("b1"))

	attempt, err := trk.BeginQuiz(context.Background(), "text", 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := trk.SubmitAnswers(attempt.Token+1, []int{0}); !errors.Is(err, ErrStaleAttempt) {
		t.Fatalf("err = %v, want ErrStaleAttempt", err)
	}
}

func TestQuizRequiresBookContext(t *testing.T) {
	trk, _, _ := newTestTracker(t, &fakeQuiz{questions: singleQuestion()})
	if _, err := trk.BeginQuiz(context.Background(), "text", 1); !errors.Is(err, ErrNoBookOpen) {
		t.Fatalf("err = %v, want ErrNoBookOpen", err)
	}
}

func TestStateTransitions(t *testing.T) {
	trk, _, clock := newTestTracker(t, &fakeQuiz{questions: singleQuestion()})
	if trk.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", trk.State())
	}
	trk.OpenBook(testBook("b1"))
	if trk.State() != StateOpened {
		t.Fatalf("state = %v, want opened", trk.State())
	}
	if _, err := trk.StartSession(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if trk.State() != StateInSession {
		t.Fatalf("state = %v, want in_session", trk.State())
	}
	clock.Advance(time.Minute)
	if _, err := trk.EndSession(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if trk.State() != StateOpened {
		t.Fatalf("state = %v, want opened after end", trk.State())
	}
	if _, err := trk.BeginQuiz(context.Background(), "text", 1); err != nil {
		t.Fatalf("begin quiz: %v", err)
	}
	if trk.State() != StateQuizPending {
		t.Fatalf("state = %v, want quiz_pending", trk.State())
	}
	trk.AbandonQuiz()
	if trk.State() != StateOpened {
		t.Fatalf("state = %v, want opened after abandon", trk.State())
	}
}
