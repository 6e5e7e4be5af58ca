// Package server exposes the HTTP surface: the two provider proxies
// (/quiz, /search) plus the local tracker endpoints.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"readquest/internal/storage"
	"readquest/internal/util"
	"readquest/pkg/apperr"
	"readquest/pkg/books"
	"readquest/pkg/domain"
	"readquest/pkg/extract"
	"readquest/pkg/leaderboard"
	"readquest/pkg/quiz"
	"readquest/pkg/tracker"
)

// Config wires required dependencies for the HTTP server. Leaderboard and
// Objects are optional; their endpoints report unavailability when unset.
type Config struct {
	Tracker          *tracker.Tracker
	Quiz             *quiz.Generator
	Books            *books.Client
	Leaderboard      *leaderboard.Service
	Objects          storage.ObjectStore
	OpenAIConfigured bool
	MaxUploadBytes   int64
	MaxExcerptRunes  int
}

// Server exposes HTTP endpoints for the reading tracker.
type Server struct {
	tracker          *tracker.Tracker
	quiz             *quiz.Generator
	books            *books.Client
	leaderboard      *leaderboard.Service
	objects          storage.ObjectStore
	openAIConfigured bool
	maxUploadBytes   int64
	maxExcerptRunes  int
	mux              *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		tracker:          cfg.Tracker,
		quiz:             cfg.Quiz,
		books:            cfg.Books,
		leaderboard:      cfg.Leaderboard,
		objects:          cfg.Objects,
		openAIConfigured: cfg.OpenAIConfigured,
		maxUploadBytes:   cfg.MaxUploadBytes,
		maxExcerptRunes:  cfg.MaxExcerptRunes,
		mux:              http.NewServeMux(),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 64 << 20
	}
	if s.maxExcerptRunes <= 0 {
		s.maxExcerptRunes = 6000
	}
	s.routes()
	return s
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/quiz", s.handleQuizProxy)
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.HandleFunc("/library", s.handleLibrary)
	s.mux.HandleFunc("/library/upload", s.handleUpload)
	s.mux.HandleFunc("/books/open", s.handleOpenBook)
	s.mux.HandleFunc("/sessions/start", s.handleStartSession)
	s.mux.HandleFunc("/sessions/end", s.handleEndSession)
	s.mux.HandleFunc("/quiz/attempts", s.handleQuizAttempts)
	s.mux.HandleFunc("/quiz/attempts/answer", s.handleQuizAnswer)
	s.mux.HandleFunc("/quiz/from-book", s.handleQuizFromBook)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/leaderboard", s.handleLeaderboard)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQuizProxy is the thin text-to-questions proxy the static client
// calls directly.
func (s *Server) handleQuizProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Use POST")
		return
	}
	var req struct {
		Text string `json:"text"`
		N    int    `json:"n"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Missing text")
		return
	}
	if !s.openAIConfigured {
		writeError(w, http.StatusInternalServerError, "Server missing OPENAI_API_KEY")
		return
	}
	if req.N <= 0 {
		req.N = quiz.DefaultQuestionCount
	}
	questions, err := s.quiz.Generate(r.Context(), req.Text, req.N)
	if err != nil {
		writeQuizError(w, r, err)
		return
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Use GET")
		return
	}
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "Missing search query (?q=)")
		return
	}
	results, err := s.books.Search(r.Context(), query)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.BookResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.tracker.Library()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if items == nil {
			items = []tracker.LibraryBook{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"books": items})
	case http.MethodPost:
		var book domain.Book
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&book); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(book.ID) == "" {
			writeError(w, http.StatusBadRequest, "book id is required")
			return
		}
		if book.SourceType == "" {
			book.SourceType = domain.SourceGoogle
		}
		if err := s.tracker.AddToLibrary(book); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
	case http.MethodDelete:
		bookID := r.URL.Query().Get("id")
		if strings.TrimSpace(bookID) == "" {
			writeError(w, http.StatusBadRequest, "book id is required (?id=)")
			return
		}
		if err := s.tracker.RemoveFromLibrary(bookID); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		methodNotAllowed(w)
	}
}

// handleUpload stores an epub/pdf file and links it into the library. The
// object key becomes the book's source locator.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.objects == nil {
		writeError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	if header.Size > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	sourceType, ok := sourceTypeFor(header.Filename)
	if !ok {
		writeError(w, http.StatusBadRequest, "only .epub and .pdf uploads are supported")
		return
	}
	book := domain.Book{
		ID:         util.NewID(),
		Title:      bookTitle(header, r.FormValue("title")),
		Authors:    []string{},
		SourceType: sourceType,
	}
	book.SourceLocator = book.ID + "/" + filepath.Base(header.Filename)
	if err := s.objects.Put(r.Context(), book.SourceLocator, file, header.Size, header.Header.Get("Content-Type")); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.tracker.AddToLibrary(book); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleOpenBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var book domain.Book
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&book); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(book.ID) == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}
	s.tracker.OpenBook(book)
	writeJSON(w, http.StatusOK, map[string]string{"state": s.tracker.State().String()})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	sess, err := s.tracker.StartSession()
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	sess, err := s.tracker.EndSession()
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	s.pushLeaderboard(r)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleQuizAttempts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Text string `json:"text"`
			N    int    `json:"n"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "Missing text")
			return
		}
		if !s.openAIConfigured {
			writeError(w, http.StatusInternalServerError, "Server missing OPENAI_API_KEY")
			return
		}
		attempt, err := s.tracker.BeginQuiz(r.Context(), req.Text, req.N)
		if err != nil {
			writeTrackerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	case http.MethodDelete:
		s.tracker.AbandonQuiz()
		writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Token   uint64 `json:"token"`
		Choices []int  `json:"choices"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.tracker.SubmitAnswers(req.Token, req.Choices)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	s.pushLeaderboard(r)
	writeJSON(w, http.StatusOK, result)
}

// handleQuizFromBook extracts an excerpt from an uploaded book and begins a
// quiz attempt from it.
func (s *Server) handleQuizFromBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.objects == nil {
		writeError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}
	if !s.openAIConfigured {
		writeError(w, http.StatusInternalServerError, "Server missing OPENAI_API_KEY")
		return
	}
	book, ok := s.tracker.CurrentBook()
	if id := r.URL.Query().Get("id"); id != "" {
		if book.ID != id || !ok {
			writeError(w, http.StatusBadRequest, "book is not open")
			return
		}
	} else if !ok {
		writeError(w, http.StatusBadRequest, "no book open")
		return
	}
	if book.SourceLocator == "" {
		writeError(w, http.StatusBadRequest, "book has no uploaded content")
		return
	}
	data, err := s.objects.Get(r.Context(), book.SourceLocator)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	text, err := extract.Text(book.SourceLocator, data, s.maxExcerptRunes)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	attempt, err := s.tracker.BeginQuiz(r.Context(), text, quiz.DefaultQuestionCount)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.tracker.Stats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.leaderboard == nil {
		writeError(w, http.StatusNotImplemented, "leaderboard not configured")
		return
	}
	entries, err := s.leaderboard.Top(r.Context(), 10)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// pushLeaderboard refreshes the redis board from current stats, best-effort.
func (s *Server) pushLeaderboard(r *http.Request) {
	if s.leaderboard == nil {
		return
	}
	stats, err := s.tracker.Stats()
	if err != nil {
		return
	}
	if err := s.leaderboard.Update(r.Context(), domain.LocalUserID, "You", stats.XP); err != nil {
		util.LoggerFromContext(r.Context()).Warn("leaderboard update failed", "err", err)
	}
}

func sourceTypeFor(filename string) (domain.SourceType, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".epub":
		return domain.SourceEPUB, true
	case ".pdf":
		return domain.SourcePDF, true
	}
	return "", false
}

func bookTitle(header *multipart.FileHeader, title string) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}
	base := filepath.Base(header.Filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeQuizError renders adapter failures on the proxy endpoint with the
// wire-compatible bodies: parse failures carry the raw upstream payload.
func writeQuizError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindMalformedResponse {
		util.LoggerFromContext(r.Context()).Warn("quiz upstream payload unusable", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Parse error",
			"raw":   rawPayload(appErr.Raw),
		})
		return
	}
	writeAppError(w, r, err)
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.Convert(err)
	if appErr.HTTPStatus() >= 500 {
		util.LoggerFromContext(r.Context()).Error("request failed", "kind", appErr.Kind.String(), "err", err)
	}
	writeError(w, appErr.HTTPStatus(), appErr.Message)
}

// writeTrackerError maps lifecycle sentinel errors onto HTTP statuses; other
// errors fall through to the taxonomy mapping.
func writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNoBookOpen):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrSessionRunning),
		errors.Is(err, tracker.ErrNoSession),
		errors.Is(err, tracker.ErrQuizInFlight),
		errors.Is(err, tracker.ErrNoQuizPending),
		errors.Is(err, tracker.ErrStaleAttempt):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appErr := apperr.Convert(err)
		writeError(w, appErr.HTTPStatus(), appErr.Message)
	}
}

func rawPayload(raw []byte) any {
	if len(raw) == 0 {
		return ""
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
