package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for Postgres persistence.
type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Authors       datatypes.JSON
	Description   string `gorm:"type:text"`
	ThumbnailURI  string
	SourceType    string `gorm:"not null"`
	SourceLocator string
	CreatedAt     time.Time `gorm:"not null"`
}

type LibraryLinkModel struct {
	UserID          string `gorm:"primaryKey"`
	BookID          string `gorm:"primaryKey"`
	LastLocation    string
	PercentComplete int
	AddedAt         time.Time `gorm:"not null"`
}

type SessionModel struct {
	SessionID    string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	BookID       string `gorm:"not null;index"`
	FromLocation string
	ToLocation   string
	Minutes      int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
	QuizCorrect  int       `gorm:"not null"`
	Seq          int64     `gorm:"autoIncrement;uniqueIndex"`
}

type QuizResultModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	BookID    string `gorm:"not null"`
	SessionID string
	Score     int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
	Seq       int64     `gorm:"autoIncrement;uniqueIndex"`
}
