package domain

import (
	"errors"
	"time"
)

var (
	// ErrBookNotFound is returned when no book on disk matches a lookup
	ErrBookNotFound = errors.New("book not found")

	// ErrInvalidBook is returned when a book on disk lacks an id or a file
	ErrInvalidBook = errors.New("book on disk needs an id and a file")
)

// Book holds catalog metadata for one downloadable archive.
// All fields are opaque values copied from the remote catalog.
type Book struct {
	ID           string `json:"id" gorm:"column:book_id;index"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Language     string `json:"language,omitempty"`
	Creator      string `json:"creator,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
	Date         string `json:"date,omitempty"`
	URL          string `json:"url,omitempty"`
	ArticleCount string `json:"article_count,omitempty"`
	MediaCount   string `json:"media_count,omitempty"`
	Size         string `json:"size,omitempty"`
	Name         string `json:"name,omitempty"`
	Favicon      string `json:"favicon,omitempty" gorm:"type:text"`
	Tags         string `json:"tags,omitempty"`
}

// BookOnDisk is a book plus the nominal local path of its archive
type BookOnDisk struct {
	DatabaseID uint      `json:"database_id" gorm:"primaryKey;autoIncrement"`
	Book       Book      `json:"book" gorm:"embedded"`
	File       string    `json:"file" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName keeps the table name stable regardless of gorm naming strategy
func (BookOnDisk) TableName() string {
	return "books_on_disk"
}

// NewBookOnDisk creates a new record for a book stored at file
func NewBookOnDisk(book Book, file string) *BookOnDisk {
	return &BookOnDisk{
		Book: book,
		File: file,
	}
}

// BookItem is the display form of a book on disk
type BookItem struct {
	DatabaseID uint   `json:"database_id"`
	Book       Book   `json:"book"`
	File       string `json:"file"`
	SizeOnDisk int64  `json:"size_on_disk"`
	HasPart    bool   `json:"has_part"`
}

// UniqueByBookID returns books with the first occurrence of each book id kept
func UniqueByBookID(books []*BookOnDisk) []*BookOnDisk {
	seen := make(map[string]bool, len(books))
	unique := make([]*BookOnDisk, 0, len(books))
	for _, b := range books {
		if seen[b.Book.ID] {
			continue
		}
		seen[b.Book.ID] = true
		unique = append(unique, b)
	}
	return unique
}
