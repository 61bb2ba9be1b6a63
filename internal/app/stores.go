package app

import (
	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/pkg/live"
)

// BookStore is a book repository that publishes a snapshot after every write
type BookStore interface {
	domain.BookRepository
	BookFeed() *live.Feed[*domain.BookOnDisk]
}

// DownloadStore is a download repository that publishes a snapshot after every write
type DownloadStore interface {
	domain.DownloadRepository
	DownloadFeed() *live.Feed[*domain.DownloadModel]
}
