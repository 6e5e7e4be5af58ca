package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"readquest/pkg/domain"
)

// GormStore implements Store using GORM + Postgres. Append-only semantics are
// kept at this layer too: sessions and quiz results are only ever inserted,
// ordered by a monotonic sequence column.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BookModel{}, &LibraryLinkModel{}, &SessionModel{}, &QuizResultModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) SaveBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	if err := g.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	return nil
}

func (g *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	err := g.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Book{}, false, nil
	}
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("get book: %w", err)
	}
	b, err := bookFromModel(model)
	if err != nil {
		return domain.Book{}, false, err
	}
	return b, true, nil
}

func (g *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := g.db.Order("created_at asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	out := make([]domain.Book, 0, len(models))
	for _, model := range models {
		b, err := bookFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (g *GormStore) AddLibraryLink(l domain.LibraryLink) error {
	model := LibraryLinkModel{
		UserID:          l.UserID,
		BookID:          l.BookID,
		LastLocation:    l.LastLocation,
		PercentComplete: l.PercentComplete,
		AddedAt:         l.AddedAt,
	}
	if err := g.db.Create(&model).Error; err != nil {
		return fmt.Errorf("add library link: %w", err)
	}
	return nil
}

func (g *GormStore) HasLibraryLink(userID, bookID string) (bool, error) {
	var count int64
	if err := g.db.Model(&LibraryLinkModel{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check library link: %w", err)
	}
	return count > 0, nil
}

func (g *GormStore) RemoveLibraryLink(userID, bookID string) error {
	if err := g.db.Delete(&LibraryLinkModel{}, "user_id = ? AND book_id = ?", userID, bookID).Error; err != nil {
		return fmt.Errorf("remove library link: %w", err)
	}
	return nil
}

func (g *GormStore) ListLibrary(userID string) ([]domain.LibraryLink, error) {
	var models []LibraryLinkModel
	if err := g.db.Where("user_id = ?", userID).Order("added_at asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	out := make([]domain.LibraryLink, 0, len(models))
	for _, model := range models {
		out = append(out, domain.LibraryLink{
			UserID:          model.UserID,
			BookID:          model.BookID,
			LastLocation:    model.LastLocation,
			PercentComplete: model.PercentComplete,
			AddedAt:         model.AddedAt,
		})
	}
	return out, nil
}

func (g *GormStore) AppendSession(s domain.Session) error {
	model := SessionModel{
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		BookID:       s.BookID,
		FromLocation: s.FromLocation,
		ToLocation:   s.ToLocation,
		Minutes:      s.Minutes,
		CreatedAt:    s.CreatedAt,
		QuizCorrect:  s.QuizCorrect,
	}
	if err := g.db.Create(&model).Error; err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

func (g *GormStore) AppendQuizResult(q domain.QuizResult) error {
	model := QuizResultModel{
		ID:        q.ID,
		UserID:    q.UserID,
		BookID:    q.BookID,
		SessionID: q.SessionID,
		Score:     q.Score,
		CreatedAt: q.CreatedAt,
	}
	if err := g.db.Create(&model).Error; err != nil {
		return fmt.Errorf("append quiz result: %w", err)
	}
	return nil
}

func (g *GormStore) LatestSession(userID string) (domain.Session, bool, error) {
	var model SessionModel
	err := g.db.Where("user_id = ?", userID).Order("seq desc").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("latest session: %w", err)
	}
	return sessionFromModel(model), true, nil
}

func (g *GormStore) Snapshot() (Snapshot, error) {
	snap := NewSnapshot()
	books, err := g.ListBooks()
	if err != nil {
		return Snapshot{}, err
	}
	snap.Books = books
	links, err := g.ListLibrary(snap.User.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Library = links

	var sessions []SessionModel
	if err := g.db.Order("seq asc").Find(&sessions).Error; err != nil {
		return Snapshot{}, fmt.Errorf("list sessions: %w", err)
	}
	for _, model := range sessions {
		snap.Sessions = append(snap.Sessions, sessionFromModel(model))
	}

	var quizzes []QuizResultModel
	if err := g.db.Order("seq asc").Find(&quizzes).Error; err != nil {
		return Snapshot{}, fmt.Errorf("list quiz results: %w", err)
	}
	for _, model := range quizzes {
		snap.Quizzes = append(snap.Quizzes, domain.QuizResult{
			ID:        model.ID,
			UserID:    model.UserID,
			BookID:    model.BookID,
			SessionID: model.SessionID,
			Score:     model.Score,
			CreatedAt: model.CreatedAt,
		})
	}
	return snap, nil
}

// Flush is a no-op: writes are committed per operation.
func (g *GormStore) Flush() error { return nil }

func bookToModel(b domain.Book) (BookModel, error) {
	authors, err := json.Marshal(b.Authors)
	if err != nil {
		return BookModel{}, fmt.Errorf("encode authors: %w", err)
	}
	return BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Authors:       datatypes.JSON(authors),
		Description:   b.Description,
		ThumbnailURI:  b.ThumbnailURI,
		SourceType:    string(b.SourceType),
		SourceLocator: b.SourceLocator,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func bookFromModel(model BookModel) (domain.Book, error) {
	var authors []string
	if len(model.Authors) > 0 {
		if err := json.Unmarshal(model.Authors, &authors); err != nil {
			return domain.Book{}, fmt.Errorf("decode authors: %w", err)
		}
	}
	return domain.Book{
		ID:            model.ID,
		Title:         model.Title,
		Authors:       authors,
		Description:   model.Description,
		ThumbnailURI:  model.ThumbnailURI,
		SourceType:    domain.SourceType(model.SourceType),
		SourceLocator: model.SourceLocator,
	}, nil
}

func sessionFromModel(model SessionModel) domain.Session {
	return domain.Session{
		SessionID:    model.SessionID,
		UserID:       model.UserID,
		BookID:       model.BookID,
		FromLocation: model.FromLocation,
		ToLocation:   model.ToLocation,
		Minutes:      model.Minutes,
		CreatedAt:    model.CreatedAt,
		QuizCorrect:  model.QuizCorrect,
	}
}
