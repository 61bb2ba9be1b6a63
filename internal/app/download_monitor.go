package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/infrastructure"
	"github.com/yourusername/zimshelf/pkg/logger"
)

type progressStart struct {
	at    time.Time
	bytes int64
}

// DownloadMonitor feeds requester callbacks into the tracker and keeps
// tracked rows in step with the requester
type DownloadMonitor struct {
	requester   domain.DownloadRequester
	tracker     *DownloadTracker
	notifier    *infrastructure.NotificationService
	config      *domain.LibraryConfig
	multiLogger *logger.MultiLogger
	logger      *zap.Logger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	workerWg sync.WaitGroup

	// held while a handle is enqueued and inserted so its first events wait for the row
	addMu          sync.Mutex
	startsMu       sync.Mutex
	starts         map[int64]progressStart
	notificationID atomic.Int32
	now            func() time.Time
}

// NewDownloadMonitor creates a new download monitor
func NewDownloadMonitor(
	requester domain.DownloadRequester,
	tracker *DownloadTracker,
	notifier *infrastructure.NotificationService,
	config *domain.LibraryConfig,
	multiLogger *logger.MultiLogger,
	log *zap.Logger,
) *DownloadMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &DownloadMonitor{
		requester:   requester,
		tracker:     tracker,
		notifier:    notifier,
		config:      config,
		multiLogger: multiLogger,
		logger:      log,
		stopChan:    make(chan struct{}),
		starts:      make(map[int64]progressStart),
		now:         time.Now,
	}
	tracker.OnPromoted(m.onPromoted)
	return m
}

// Start resumes interrupted downloads and begins consuming requester events
func (m *DownloadMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("download monitor already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if m.multiLogger != nil {
		m.multiLogger.LogDownloadEvent("monitor_started")
	}

	if err := m.recover(ctx); err != nil {
		m.logger.Error("Failed to recover interrupted downloads", zap.Error(err))
	}

	m.workerWg.Add(1)
	go m.monitor(ctx)
	return nil
}

// Stop stops the monitor
func (m *DownloadMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("download monitor not running")
	}
	m.running = false
	m.mu.Unlock()

	if m.multiLogger != nil {
		m.multiLogger.LogDownloadEvent("monitor_stopped")
	}
	close(m.stopChan)
	m.workerWg.Wait()
	return nil
}

// IsRunning returns whether the monitor is running
func (m *DownloadMonitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Add enqueues a book download unless one is already tracked for the book
func (m *DownloadMonitor) Add(ctx context.Context, url string, book domain.Book) (*domain.DownloadModel, error) {
	if domain.FileNameFromURL(url) == "" {
		return nil, fmt.Errorf("invalid download url: %q", url)
	}
	if book.URL == "" {
		book.URL = url
	}
	if book.ID == "" {
		return nil, fmt.Errorf("%w: book id is required", domain.ErrInvalidBook)
	}

	m.addMu.Lock()
	downloadID, err := m.tracker.AddIfDoesNotExist(book, func() (int64, error) {
		return m.requester.Enqueue(ctx, domain.DownloadRequest{
			URL:            url,
			NotificationID: int(m.notificationID.Add(1)),
		})
	})
	m.addMu.Unlock()
	if err != nil {
		return nil, err
	}

	if m.notifier != nil {
		m.notifier.NotifyDownloadQueued(book)
	}
	return m.tracker.Get(downloadID)
}

// Pause pauses a running download
func (m *DownloadMonitor) Pause(downloadID int64) error {
	if _, err := m.tracker.Get(downloadID); err != nil {
		return err
	}
	return m.requester.Pause(downloadID)
}

// Resume requeues a paused download
func (m *DownloadMonitor) Resume(downloadID int64) error {
	if _, err := m.tracker.Get(downloadID); err != nil {
		return err
	}
	if err := m.requester.Resume(downloadID); err != nil {
		return err
	}
	m.resetStart(downloadID)
	return m.tracker.Update(domain.NewStatusEvent(downloadID, domain.StatusQueued, domain.ErrorNone))
}

// Cancel cancels a download; a handle the requester no longer knows is
// removed from tracking directly
func (m *DownloadMonitor) Cancel(downloadID int64) error {
	if _, err := m.tracker.Get(downloadID); err != nil {
		return err
	}
	err := m.requester.Cancel(downloadID)
	if errors.Is(err, domain.ErrDownloadNotFound) {
		return m.handleEvent(domain.NewStatusEvent(downloadID, domain.StatusCancelled, domain.ErrorCancelled))
	}
	return err
}

func (m *DownloadMonitor) monitor(ctx context.Context) {
	defer m.workerWg.Done()

	interval := m.config.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if m.multiLogger != nil {
				m.multiLogger.LogDownloadEvent("monitor_stopped",
					zap.String("reason", "context_cancelled"))
			}
			return
		case <-m.stopChan:
			return
		case event := <-m.requester.Events():
			if err := m.handleEvent(event); err != nil {
				m.logError("Failed to apply download event", err, zap.Int64("download_id", event.DownloadID))
			}
		case <-ticker.C:
			m.reconcile()
		}
	}
}

// handleEvent fills in progress and ETA, then applies the event
func (m *DownloadMonitor) handleEvent(event domain.StatusEvent) error {
	// wait for an in-flight Add to insert the row
	m.addMu.Lock()
	m.addMu.Unlock()

	if event.BytesDownloaded >= 0 && event.TotalSize > 0 {
		event.Progress = domain.CalculateProgress(event.BytesDownloaded, event.TotalSize)
		if event.Status == domain.StatusDownloading {
			event.EtaMillis = m.estimate(event)
		}
	}

	switch event.Status {
	case domain.StatusCancelled:
		m.resetStart(event.DownloadID)
		if err := m.tracker.Update(event); err != nil {
			return err
		}
		return m.tracker.Delete(event)
	case domain.StatusFailed:
		m.resetStart(event.DownloadID)
		if err := m.tracker.Update(event); err != nil {
			return err
		}
		if download, err := m.tracker.Get(event.DownloadID); err == nil {
			m.logger.Warn("Download failed",
				zap.Int64("download_id", event.DownloadID),
				zap.String("state", download.ReadableState()))
			if m.notifier != nil {
				m.notifier.NotifyDownloadFailed(*download)
			}
		}
		return nil
	case domain.StatusCompleted, domain.StatusPaused:
		m.resetStart(event.DownloadID)
	}
	return m.tracker.Update(event)
}

// estimate returns the remaining time in milliseconds from the average rate
// since the first progress event, or -1 while unknown
func (m *DownloadMonitor) estimate(event domain.StatusEvent) int64 {
	m.startsMu.Lock()
	defer m.startsMu.Unlock()

	now := m.now()
	start, ok := m.starts[event.DownloadID]
	if !ok {
		m.starts[event.DownloadID] = progressStart{at: now, bytes: event.BytesDownloaded}
		return -1
	}

	downloaded := event.BytesDownloaded - start.bytes
	elapsed := now.Sub(start.at).Milliseconds()
	if downloaded <= 0 || elapsed <= 0 {
		return -1
	}
	remaining := event.TotalSize - event.BytesDownloaded
	if remaining < 0 {
		remaining = 0
	}
	return int64(float64(remaining) * float64(elapsed) / float64(downloaded))
}

func (m *DownloadMonitor) resetStart(downloadID int64) {
	m.startsMu.Lock()
	delete(m.starts, downloadID)
	m.startsMu.Unlock()
}

// reconcile applies the requester's latest state to every ongoing row
func (m *DownloadMonitor) reconcile() {
	ongoing, err := m.tracker.Ongoing()
	if err != nil {
		m.logError("Failed to load ongoing downloads", err)
		return
	}

	for _, d := range ongoing {
		event, ok := m.requester.Status(d.DownloadID)
		if !ok {
			event = domain.NewStatusEvent(d.DownloadID, domain.StatusCancelled, domain.ErrorCancelled)
		}
		if err := m.handleEvent(event); err != nil {
			m.logError("Failed to reconcile download", err, zap.Int64("download_id", d.DownloadID))
		}
	}
}

// recover re-enqueues tracked downloads whose handles did not survive a
// restart. Chunk files already on disk are reused by the requester.
func (m *DownloadMonitor) recover(ctx context.Context) error {
	ongoing, err := m.tracker.Ongoing()
	if err != nil {
		return err
	}

	for _, d := range ongoing {
		if _, ok := m.requester.Status(d.DownloadID); ok {
			continue
		}

		m.addMu.Lock()
		newID, err := m.requester.Enqueue(ctx, domain.DownloadRequest{
			URL:            d.Book.URL,
			NotificationID: int(m.notificationID.Add(1)),
		})
		if err == nil {
			err = m.tracker.Delete(domain.NewStatusEvent(d.DownloadID, d.Status, domain.ErrorNone))
		}
		if err == nil {
			err = m.tracker.Insert(newID, d.Book)
		}
		m.addMu.Unlock()
		if err != nil {
			m.logError("Failed to recover download", err, zap.Int64("download_id", d.DownloadID))
			continue
		}

		if d.Status == domain.StatusPaused {
			if err := m.requester.Pause(newID); err != nil {
				m.logError("Failed to pause recovered download", err, zap.Int64("download_id", newID))
			}
		}
		m.logger.Info("Recovered download",
			zap.Int64("old_download_id", d.DownloadID),
			zap.Int64("download_id", newID),
			zap.String("url", d.Book.URL))
	}
	return nil
}

func (m *DownloadMonitor) onPromoted(downloads []*domain.DownloadModel) {
	for _, d := range downloads {
		if m.notifier != nil {
			m.notifier.NotifyDownloadCompleted(d.Book)
		}
		if m.multiLogger != nil {
			m.multiLogger.LogLibraryEvent("book_downloaded",
				zap.String("book_id", d.Book.ID),
				zap.String("file", d.File))
		}
	}
}

func (m *DownloadMonitor) logError(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	m.logger.Error(msg, fields...)
	if m.multiLogger != nil {
		m.multiLogger.LogAppError(msg, fields...)
	}
}
