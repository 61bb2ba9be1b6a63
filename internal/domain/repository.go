package domain

// BookRepository defines persistence for books on disk
type BookRepository interface {
	// InsertBooks replaces any rows sharing a file path or book id with the batch, atomically
	InsertBooks(books []*BookOnDisk) error

	// DeleteBook deletes one book by database ID
	DeleteBook(databaseID uint) error

	// DeleteBooks deletes several books by database ID in one transaction
	DeleteBooks(databaseIDs []uint) error

	// FindBook finds a book by database ID
	FindBook(databaseID uint) (*BookOnDisk, error)

	// FindBookByBookID finds a book by catalog id
	FindBookByBookID(bookID string) (*BookOnDisk, error)

	// FindAllBooks returns every stored book
	FindAllBooks() ([]*BookOnDisk, error)
}

// DownloadRepository defines persistence for tracked downloads
type DownloadRepository interface {
	// CreateDownload stores a new tracked download
	CreateDownload(download *DownloadModel) error

	// UpdateDownload writes back a tracked download
	UpdateDownload(download *DownloadModel) error

	// DeleteDownload deletes a tracked download by requester handle
	DeleteDownload(downloadID int64) error

	// FindDownload finds a tracked download by requester handle
	FindDownload(downloadID int64) (*DownloadModel, error)

	// FindAllDownloads returns every tracked download
	FindAllDownloads() ([]*DownloadModel, error)

	// CountDownloadsForBook counts tracked downloads for a catalog id
	CountDownloadsForBook(bookID string) (int64, error)

	// PromoteDownloads removes the downloads and inserts their books in one transaction
	PromoteDownloads(downloads []*DownloadModel) error
}

// LibraryStats represents library statistics
type LibraryStats struct {
	Books       int64 `json:"books"`
	Downloads   int64 `json:"downloads"`
	Downloading int64 `json:"downloading"`
	Paused      int64 `json:"paused"`
	Failed      int64 `json:"failed"`
}
