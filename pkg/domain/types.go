package domain

import "time"

type SourceType string

const (
	SourceGoogle SourceType = "google"
	SourceEPUB   SourceType = "epub"
	SourcePDF    SourceType = "pdf"
)

// LocalUserID is the single implicit user of the current scope. Modeled as a
// first-class identifier so a multi-user extension does not need a redesign.
const LocalUserID = "me"

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Book is a catalog entry. Immutable once added except for reader-supplied
// locator fields.
type Book struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Authors       []string   `json:"authors"`
	Description   string     `json:"description"`
	ThumbnailURI  string     `json:"thumbnail"`
	SourceType    SourceType `json:"sourceType"`
	SourceLocator string     `json:"sourceLocator,omitempty"`
}

// LibraryLink relates a user to a catalog book. Unique per (userId, bookId).
type LibraryLink struct {
	UserID          string    `json:"userId"`
	BookID          string    `json:"bookId"`
	LastLocation    string    `json:"lastLocation"`
	PercentComplete int       `json:"percent"`
	AddedAt         time.Time `json:"addedAt"`
}

// Session is a completed reading interval. Only ended sessions are ever
// persisted; minutes is always >= 1 for a persisted session.
type Session struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	BookID       string    `json:"bookId"`
	FromLocation string    `json:"fromLoc"`
	ToLocation   string    `json:"toLoc"`
	Minutes      int       `json:"minutes"`
	CreatedAt    time.Time `json:"createdAt"`
	QuizCorrect  int       `json:"quizCorrect"`
}

// QuizResult records the outcome of one quiz attempt. SessionID is a
// best-effort backreference to the most recent session, not an ownership
// relation; it may be empty.
type QuizResult struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BookID    string    `json:"bookId"`
	SessionID string    `json:"sessionId,omitempty"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question is one generated multiple-choice question.
type Question struct {
	Prompt      string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
	Explanation string   `json:"explanation"`
}

type Achievement struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Stats are the derived gamification metrics, recomputable at any time from
// the event log.
type Stats struct {
	WeeklyMinutes int           `json:"weeklyMinutes"`
	XP            int           `json:"xp"`
	Streak        int           `json:"streak"`
	QuizAccuracy  int           `json:"quizAccuracy"`
	Achievements  []Achievement `json:"achievements"`
}

// BookResult is one normalized search hit from the metadata provider.
type BookResult struct {
	ID           string   `json:"id"`
	GoogleID     string   `json:"googleId"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	Description  string   `json:"description"`
	ThumbnailURI string   `json:"thumbnail"`
	PreviewLink  string   `json:"previewLink,omitempty"`
}
