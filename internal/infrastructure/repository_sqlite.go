package infrastructure

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/pkg/live"
)

// SQLiteRepository implements BookRepository and DownloadRepository using SQLite.
// Every committed write publishes a fresh snapshot of the affected table.
type SQLiteRepository struct {
	db     *gorm.DB
	logger *zap.Logger

	writeMu   sync.Mutex
	books     *live.Feed[*domain.BookOnDisk]
	downloads *live.Feed[*domain.DownloadModel]
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string, log *zap.Logger) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.BookOnDisk{}, &domain.DownloadModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	r := &SQLiteRepository{
		db:        db,
		logger:    log,
		books:     live.NewFeed[*domain.BookOnDisk](),
		downloads: live.NewFeed[*domain.DownloadModel](),
	}
	r.publishBooks()
	r.publishDownloads()
	return r, nil
}

// BookFeed returns the feed of book snapshots
func (r *SQLiteRepository) BookFeed() *live.Feed[*domain.BookOnDisk] {
	return r.books
}

// DownloadFeed returns the feed of download snapshots
func (r *SQLiteRepository) DownloadFeed() *live.Feed[*domain.DownloadModel] {
	return r.downloads
}

// ============================================================================
// BookRepository implementation
// ============================================================================

// InsertBooks removes rows sharing a file path or book id with the batch, then
// inserts the batch deduplicated by book id. All three steps share one transaction.
func (r *SQLiteRepository) InsertBooks(books []*domain.BookOnDisk) error {
	if len(books) == 0 {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.Transaction(func(tx *gorm.DB) error {
		return insertBooksTx(tx, books)
	}); err != nil {
		return fmt.Errorf("failed to insert books: %w", err)
	}

	r.publishBooks()
	return nil
}

func insertBooksTx(tx *gorm.DB, books []*domain.BookOnDisk) error {
	paths := make([]string, 0, len(books))
	ids := make([]string, 0, len(books))
	for _, b := range books {
		// an empty id would match, and delete, every other id-less row
		if b.Book.ID == "" || b.File == "" {
			return fmt.Errorf("%w: id=%q file=%q", domain.ErrInvalidBook, b.Book.ID, b.File)
		}
		paths = append(paths, b.File)
		ids = append(ids, b.Book.ID)
	}

	if err := tx.Where("file IN ?", paths).Delete(&domain.BookOnDisk{}).Error; err != nil {
		return fmt.Errorf("failed to remove books with same file: %w", err)
	}
	if err := tx.Where("book_id IN ?", ids).Delete(&domain.BookOnDisk{}).Error; err != nil {
		return fmt.Errorf("failed to remove books with same id: %w", err)
	}

	unique := domain.UniqueByBookID(books)
	for _, b := range unique {
		b.DatabaseID = 0
	}
	return tx.Create(&unique).Error
}

// DeleteBook deletes one book by database ID
func (r *SQLiteRepository) DeleteBook(databaseID uint) error {
	return r.DeleteBooks([]uint{databaseID})
}

// DeleteBooks deletes several books by database ID in one transaction
func (r *SQLiteRepository) DeleteBooks(databaseIDs []uint) error {
	if len(databaseIDs) == 0 {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&domain.BookOnDisk{}, databaseIDs).Error
	}); err != nil {
		return fmt.Errorf("failed to delete books: %w", err)
	}

	r.publishBooks()
	return nil
}

// FindBook finds a book by database ID
func (r *SQLiteRepository) FindBook(databaseID uint) (*domain.BookOnDisk, error) {
	var book domain.BookOnDisk
	err := r.db.First(&book, "database_id = ?", databaseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// FindBookByBookID finds a book by catalog id
func (r *SQLiteRepository) FindBookByBookID(bookID string) (*domain.BookOnDisk, error) {
	var book domain.BookOnDisk
	err := r.db.Where("book_id = ?", bookID).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// FindAllBooks returns every stored book
func (r *SQLiteRepository) FindAllBooks() ([]*domain.BookOnDisk, error) {
	var books []*domain.BookOnDisk
	err := r.db.Order("database_id ASC").Find(&books).Error
	return books, err
}

// ============================================================================
// DownloadRepository implementation
// ============================================================================

// CreateDownload stores a new tracked download
func (r *SQLiteRepository) CreateDownload(download *domain.DownloadModel) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.Create(download).Error; err != nil {
		return fmt.Errorf("failed to create download: %w", err)
	}
	r.publishDownloads()
	return nil
}

// UpdateDownload writes back a tracked download
func (r *SQLiteRepository) UpdateDownload(download *domain.DownloadModel) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.Save(download).Error; err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	r.publishDownloads()
	return nil
}

// DeleteDownload deletes a tracked download by requester handle
func (r *SQLiteRepository) DeleteDownload(downloadID int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.Where("download_id = ?", downloadID).Delete(&domain.DownloadModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	r.publishDownloads()
	return nil
}

// FindDownload finds a tracked download by requester handle
func (r *SQLiteRepository) FindDownload(downloadID int64) (*domain.DownloadModel, error) {
	var download domain.DownloadModel
	err := r.db.Where("download_id = ?", downloadID).First(&download).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDownloadNotFound
		}
		return nil, err
	}
	return &download, nil
}

// FindAllDownloads returns every tracked download
func (r *SQLiteRepository) FindAllDownloads() ([]*domain.DownloadModel, error) {
	var downloads []*domain.DownloadModel
	err := r.db.Order("created_at ASC, id ASC").Find(&downloads).Error
	return downloads, err
}

// CountDownloadsForBook counts tracked downloads for a catalog id
func (r *SQLiteRepository) CountDownloadsForBook(bookID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.DownloadModel{}).Where("book_id = ?", bookID).Count(&count).Error
	return count, err
}

// PromoteDownloads removes the downloads and inserts their books in one transaction
func (r *SQLiteRepository) PromoteDownloads(downloads []*domain.DownloadModel) error {
	if len(downloads) == 0 {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	ids := make([]int64, 0, len(downloads))
	books := make([]*domain.BookOnDisk, 0, len(downloads))
	for _, d := range downloads {
		ids = append(ids, d.DownloadID)
		books = append(books, d.ToBookOnDisk())
	}

	if err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("download_id IN ?", ids).Delete(&domain.DownloadModel{}).Error; err != nil {
			return fmt.Errorf("failed to remove downloads: %w", err)
		}
		return insertBooksTx(tx, books)
	}); err != nil {
		return fmt.Errorf("failed to promote downloads: %w", err)
	}

	r.publishDownloads()
	r.publishBooks()
	return nil
}

// GetStats returns library statistics
func (r *SQLiteRepository) GetStats() (*domain.LibraryStats, error) {
	stats := &domain.LibraryStats{}

	if err := r.db.Model(&domain.BookOnDisk{}).Count(&stats.Books).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&domain.DownloadModel{}).Count(&stats.Downloads).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.DownloadStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.DownloadModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusDownloading:
			stats.Downloading = sc.Count
		case domain.StatusPaused:
			stats.Paused = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		}
	}

	return stats, nil
}

// Close cancels subscriptions and closes the database connection
func (r *SQLiteRepository) Close() error {
	r.books.Close()
	r.downloads.Close()

	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SQLiteRepository) publishBooks() {
	books, err := r.FindAllBooks()
	if err != nil {
		r.logger.Error("Failed to load books snapshot", zap.Error(err))
		return
	}
	r.books.Publish(books)
}

func (r *SQLiteRepository) publishDownloads() {
	downloads, err := r.FindAllDownloads()
	if err != nil {
		r.logger.Error("Failed to load downloads snapshot", zap.Error(err))
		return
	}
	r.downloads.Publish(downloads)
}
