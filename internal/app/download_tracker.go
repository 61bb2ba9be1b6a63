package app

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/pkg/live"
	"github.com/yourusername/zimshelf/pkg/logger"
)

// DownloadTracker records the state of every active download and promotes
// completed ones into books on disk
type DownloadTracker struct {
	repo        DownloadStore
	multiLogger *logger.MultiLogger
	logger      *zap.Logger

	feed *live.Feed[*domain.DownloadModel]

	addMu      sync.Mutex
	mu         sync.Mutex
	sub        *live.Subscription[*domain.DownloadModel]
	onPromoted []func([]*domain.DownloadModel)
}

// NewDownloadTracker creates a new download tracker
func NewDownloadTracker(repo DownloadStore, multiLogger *logger.MultiLogger, log *zap.Logger) *DownloadTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &DownloadTracker{
		repo:        repo,
		multiLogger: multiLogger,
		logger:      log,
		feed:        live.NewFeed[*domain.DownloadModel](),
	}
}

// OnPromoted registers fn to run after completed downloads become books
func (t *DownloadTracker) OnPromoted(fn func([]*domain.DownloadModel)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPromoted = append(t.onPromoted, fn)
}

// Start subscribes to the store
func (t *DownloadTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return
	}
	t.sub = t.repo.DownloadFeed().Subscribe(t.onDownloads)
}

// Stop cancels the store subscription and every tracker subscriber
func (t *DownloadTracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	t.feed.Close()
}

// Downloads returns the live view of tracked downloads
func (t *DownloadTracker) Downloads() *live.Feed[*domain.DownloadModel] {
	return t.feed
}

// List returns every tracked download
func (t *DownloadTracker) List() ([]*domain.DownloadModel, error) {
	return t.repo.FindAllDownloads()
}

// Get returns one tracked download
func (t *DownloadTracker) Get(downloadID int64) (*domain.DownloadModel, error) {
	return t.repo.FindDownload(downloadID)
}

// Ongoing returns downloads that are waiting, running or paused
func (t *DownloadTracker) Ongoing() ([]*domain.DownloadModel, error) {
	all, err := t.repo.FindAllDownloads()
	if err != nil {
		return nil, err
	}
	ongoing := make([]*domain.DownloadModel, 0, len(all))
	for _, d := range all {
		if d.Status.IsOngoing() {
			ongoing = append(ongoing, d)
		}
	}
	return ongoing, nil
}

// Insert starts tracking a download handle for book
func (t *DownloadTracker) Insert(downloadID int64, book domain.Book) error {
	if book.ID == "" {
		return fmt.Errorf("%w: empty book id", domain.ErrInvalidBook)
	}
	if err := t.repo.CreateDownload(domain.NewDownloadModel(downloadID, book)); err != nil {
		return err
	}
	if t.multiLogger != nil {
		t.multiLogger.LogDownloadEvent("download_added",
			zap.Int64("download_id", downloadID),
			zap.String("book_id", book.ID),
			zap.String("url", book.URL))
	}
	return nil
}

// AddIfDoesNotExist calls enqueue and tracks the returned handle, unless the
// book already has a tracked download
func (t *DownloadTracker) AddIfDoesNotExist(book domain.Book, enqueue func() (int64, error)) (int64, error) {
	t.addMu.Lock()
	defer t.addMu.Unlock()

	count, err := t.repo.CountDownloadsForBook(book.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	if count > 0 {
		return 0, domain.ErrDownloadExists
	}

	downloadID, err := enqueue()
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue download: %w", err)
	}
	if err := t.Insert(downloadID, book); err != nil {
		return 0, err
	}
	return downloadID, nil
}

// Update applies a status event to its tracked download. Unknown handles are
// ignored and nothing is written when the state does not change.
func (t *DownloadTracker) Update(event domain.StatusEvent) error {
	current, err := t.repo.FindDownload(event.DownloadID)
	if err != nil {
		if errors.Is(err, domain.ErrDownloadNotFound) {
			return nil
		}
		return err
	}

	updated := current.WithEvent(event)
	if updated.SameState(*current) {
		return nil
	}
	if current.Status != updated.Status && !current.Status.CanTransitionTo(updated.Status) {
		t.logger.Warn("Unexpected download transition",
			zap.Int64("download_id", event.DownloadID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(updated.Status)))
	}
	if err := t.repo.UpdateDownload(&updated); err != nil {
		return err
	}

	if current.Status != updated.Status && t.multiLogger != nil {
		t.multiLogger.LogDownloadEvent("download_status",
			zap.Int64("download_id", event.DownloadID),
			zap.String("status", string(updated.Status)),
			zap.String("error", string(updated.Error)))
	}
	return nil
}

// Delete stops tracking the download named by event
func (t *DownloadTracker) Delete(event domain.StatusEvent) error {
	if err := t.repo.DeleteDownload(event.DownloadID); err != nil {
		return err
	}
	if t.multiLogger != nil {
		t.multiLogger.LogDownloadEvent("download_removed",
			zap.Int64("download_id", event.DownloadID),
			zap.String("status", string(event.Status)))
	}
	return nil
}

// onDownloads promotes completed downloads and republishes the rest
func (t *DownloadTracker) onDownloads(downloads []*domain.DownloadModel) {
	var completed []*domain.DownloadModel
	remaining := make([]*domain.DownloadModel, 0, len(downloads))
	for _, d := range downloads {
		if d.Status == domain.StatusCompleted {
			if d.Book.ID != "" && d.File != "" {
				completed = append(completed, d)
				continue
			}
			t.logger.Warn("Completed download has no book id or file, not promoting",
				zap.Int64("download_id", d.DownloadID))
		}
		remaining = append(remaining, d)
	}

	if len(completed) > 0 {
		if err := t.repo.PromoteDownloads(completed); err != nil {
			t.logger.Error("Failed to promote completed downloads", zap.Error(err))
			if t.multiLogger != nil {
				t.multiLogger.LogAppError("Failed to promote completed downloads", zap.Error(err))
			}
		} else {
			for _, d := range completed {
				t.logger.Info("Download promoted to library",
					zap.Int64("download_id", d.DownloadID),
					zap.String("book_id", d.Book.ID),
					zap.String("file", d.File))
				if t.multiLogger != nil {
					t.multiLogger.LogDownloadEvent("download_promoted",
						zap.Int64("download_id", d.DownloadID),
						zap.String("file", d.File))
				}
			}

			t.mu.Lock()
			hooks := append([]func([]*domain.DownloadModel){}, t.onPromoted...)
			t.mu.Unlock()
			for _, fn := range hooks {
				fn(completed)
			}
		}
	}

	t.feed.Publish(remaining)
}
