package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/zimfile"
	"github.com/yourusername/zimshelf/pkg/live"
	"github.com/yourusername/zimshelf/pkg/logger"
)

// BookLibrary keeps the stored books in line with what is on disk. The file
// system is the source of truth: records whose archive is gone are dropped
// whenever the store publishes.
type BookLibrary struct {
	repo        BookStore
	downloads   domain.DownloadRepository
	locator     *zimfile.Locator
	multiLogger *logger.MultiLogger
	logger      *zap.Logger

	feed *live.Feed[domain.BookItem]

	mu   sync.Mutex
	sub  *live.Subscription[*domain.BookOnDisk]
	last []domain.BookItem
	seen bool
}

// NewBookLibrary creates a new book library. downloads may be nil, in which
// case Scan does not skip archives that are still being downloaded.
func NewBookLibrary(
	repo BookStore,
	downloads domain.DownloadRepository,
	locator *zimfile.Locator,
	multiLogger *logger.MultiLogger,
	log *zap.Logger,
) *BookLibrary {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookLibrary{
		repo:        repo,
		downloads:   downloads,
		locator:     locator,
		multiLogger: multiLogger,
		logger:      log,
		feed:        live.NewFeed[domain.BookItem](),
	}
}

// Start subscribes to the store
func (l *BookLibrary) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return
	}
	l.sub = l.repo.BookFeed().Subscribe(l.onBooks)
}

// Stop cancels the store subscription and every library subscriber
func (l *BookLibrary) Stop() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	l.feed.Close()
}

// Books returns the live view of books on disk
func (l *BookLibrary) Books() *live.Feed[domain.BookItem] {
	return l.feed
}

// List reads and reconciles the stored books once
func (l *BookLibrary) List() ([]domain.BookItem, error) {
	books, err := l.repo.FindAllBooks()
	if err != nil {
		return nil, fmt.Errorf("failed to load books: %w", err)
	}
	return l.reconcile(books), nil
}

// Get returns one book by database ID
func (l *BookLibrary) Get(databaseID uint) (*domain.BookItem, error) {
	book, err := l.repo.FindBook(databaseID)
	if err != nil {
		return nil, err
	}
	item := l.toItem(book)
	return &item, nil
}

// BookByID returns the book on disk for a catalog id
func (l *BookLibrary) BookByID(bookID string) (*domain.BookItem, error) {
	book, err := l.repo.FindBookByBookID(bookID)
	if err != nil {
		return nil, err
	}
	item := l.toItem(book)
	return &item, nil
}

// Insert stores books, replacing rows that share a file path or book id
func (l *BookLibrary) Insert(books []*domain.BookOnDisk) error {
	if err := l.repo.InsertBooks(books); err != nil {
		return err
	}
	if l.multiLogger != nil {
		for _, b := range books {
			l.multiLogger.LogLibraryEvent("book_inserted",
				zap.String("book_id", b.Book.ID),
				zap.String("file", b.File))
		}
	}
	return nil
}

// Delete removes one record without touching the file system
func (l *BookLibrary) Delete(databaseID uint) error {
	if err := l.repo.DeleteBook(databaseID); err != nil {
		return err
	}
	if l.multiLogger != nil {
		l.multiLogger.LogLibraryEvent("book_deleted", zap.Uint("database_id", databaseID))
	}
	return nil
}

// DeleteBook removes a book's archive and parts, then its record
func (l *BookLibrary) DeleteBook(databaseID uint) error {
	book, err := l.repo.FindBook(databaseID)
	if err != nil {
		return err
	}
	if err := l.locator.DeleteZimFile(book.File); err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return l.Delete(databaseID)
}

// Scan registers every archive found under dir that is not being downloaded
func (l *BookLibrary) Scan(dir string) ([]*domain.BookOnDisk, error) {
	paths, err := l.locator.Scan(dir)
	if err != nil {
		return nil, err
	}

	downloading, err := l.downloadingNames()
	if err != nil {
		return nil, err
	}

	var books []*domain.BookOnDisk
	for _, path := range paths {
		if downloading[filepath.Base(path)] {
			l.logger.Debug("Skipping archive being downloaded", zap.String("path", path))
			continue
		}
		books = append(books, domain.NewBookOnDisk(l.locator.BookFromFile(path), path))
	}
	if len(books) == 0 {
		return books, nil
	}

	if err := l.Insert(books); err != nil {
		return nil, err
	}
	l.logger.Info("Library scan complete",
		zap.String("dir", dir),
		zap.Int("found", len(books)))
	return books, nil
}

func (l *BookLibrary) downloadingNames() (map[string]bool, error) {
	names := make(map[string]bool)
	if l.downloads == nil {
		return names, nil
	}
	downloads, err := l.downloads.FindAllDownloads()
	if err != nil {
		return nil, fmt.Errorf("failed to load downloads: %w", err)
	}
	for _, d := range downloads {
		name := domain.FileNameFromURL(d.Book.URL)
		if name == "" {
			continue
		}
		names[name] = true
		names[strings.TrimSuffix(name, filepath.Ext(name))+domain.ZimExtension+domain.Suffix(0)] = true
		if d.File != "" {
			names[filepath.Base(d.File)] = true
		}
	}
	return names, nil
}

func (l *BookLibrary) onBooks(books []*domain.BookOnDisk) {
	items := l.reconcile(books)

	l.mu.Lock()
	changed := !l.seen || !sameItems(l.last, items)
	l.last = items
	l.seen = true
	l.mu.Unlock()

	if changed {
		l.feed.Publish(items)
	}
}

// reconcile drops records whose archive is missing and maps the rest
func (l *BookLibrary) reconcile(books []*domain.BookOnDisk) []domain.BookItem {
	items := make([]domain.BookItem, 0, len(books))
	var stale []uint
	for _, b := range books {
		if !l.locator.Exists(b.File) {
			stale = append(stale, b.DatabaseID)
			continue
		}
		items = append(items, l.toItem(b))
	}

	if len(stale) > 0 {
		if err := l.repo.DeleteBooks(stale); err != nil && !errors.Is(err, domain.ErrBookNotFound) {
			l.logger.Error("Failed to prune missing books", zap.Error(err))
			if l.multiLogger != nil {
				l.multiLogger.LogAppError("Failed to prune missing books", zap.Error(err))
			}
		} else if l.multiLogger != nil {
			l.multiLogger.LogLibraryEvent("books_pruned", zap.Int("count", len(stale)))
		}
	}
	return items
}

func (l *BookLibrary) toItem(b *domain.BookOnDisk) domain.BookItem {
	return domain.BookItem{
		DatabaseID: b.DatabaseID,
		Book:       b.Book,
		File:       b.File,
		SizeOnDisk: l.locator.SizeOnDisk(b.File),
		HasPart:    l.locator.HasPart(b.File),
	}
}

func sameItems(a, b []domain.BookItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
