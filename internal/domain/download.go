package domain

import (
	"errors"
	"time"
)

var (
	// ErrDownloadNotFound is returned when no tracked download matches a handle
	ErrDownloadNotFound = errors.New("download not found")

	// ErrDownloadExists is returned when a book already has a tracked download
	ErrDownloadExists = errors.New("download already exists for book")
)

// DownloadStatus represents the current status of a download
type DownloadStatus string

const (
	StatusNone        DownloadStatus = "none"
	StatusAdded       DownloadStatus = "added"
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusPaused      DownloadStatus = "paused"
	StatusCompleted   DownloadStatus = "completed"
	StatusCancelled   DownloadStatus = "cancelled"
	StatusFailed      DownloadStatus = "failed"
	StatusRemoved     DownloadStatus = "removed"
	StatusDeleted     DownloadStatus = "deleted"
)

// ValidStatus checks if a status is known
func ValidStatus(status DownloadStatus) bool {
	switch status {
	case StatusNone, StatusAdded, StatusQueued, StatusDownloading, StatusPaused,
		StatusCompleted, StatusCancelled, StatusFailed, StatusRemoved, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is expected
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusRemoved, StatusDeleted:
		return true
	}
	return false
}

// IsOngoing reports whether the download is waiting, running or paused
func (s DownloadStatus) IsOngoing() bool {
	switch s {
	case StatusNone, StatusAdded, StatusQueued, StatusDownloading, StatusPaused:
		return true
	}
	return false
}

// CanTransitionTo checks a transition against the download state machine
func (s DownloadStatus) CanTransitionTo(next DownloadStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusNone, StatusAdded, StatusQueued:
		return next != StatusNone
	case StatusDownloading:
		return next != StatusNone && next != StatusAdded
	case StatusPaused:
		return next == StatusDownloading || next == StatusQueued || next.IsTerminal()
	}
	return false
}

// DownloadModel tracks one active or terminal download
type DownloadModel struct {
	ID              uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	DownloadID      int64          `json:"download_id" gorm:"uniqueIndex;not null"`
	Book            Book           `json:"book" gorm:"embedded"`
	File            string         `json:"file,omitempty"`
	EtaMillis       int64          `json:"eta_millis"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	TotalSize       int64          `json:"total_size"`
	Progress        int            `json:"progress"`
	Status          DownloadStatus `json:"status" gorm:"not null;index"`
	Error           DownloadError  `json:"error"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName keeps the table name stable regardless of gorm naming strategy
func (DownloadModel) TableName() string {
	return "downloads"
}

// NewDownloadModel creates a new tracked download for a requester handle
func NewDownloadModel(downloadID int64, book Book) *DownloadModel {
	return &DownloadModel{
		DownloadID: downloadID,
		Book:       book,
		Status:     StatusNone,
		Error:      ErrorNone,
		EtaMillis:  -1,
	}
}

// StatusEvent is a progress or status callback from the download requester.
// Negative numeric fields and an empty File mean "unchanged".
type StatusEvent struct {
	DownloadID      int64          `json:"download_id"`
	Status          DownloadStatus `json:"status"`
	Error           DownloadError  `json:"error"`
	Progress        int            `json:"progress"`
	EtaMillis       int64          `json:"eta_millis"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	TotalSize       int64          `json:"total_size"`
	File            string         `json:"file,omitempty"`
}

// NewStatusEvent creates an event that only carries a status and error
func NewStatusEvent(downloadID int64, status DownloadStatus, err DownloadError) StatusEvent {
	return StatusEvent{
		DownloadID:      downloadID,
		Status:          status,
		Error:           err,
		Progress:        -1,
		EtaMillis:       -1,
		BytesDownloaded: -1,
		TotalSize:       -1,
	}
}

// Merge returns e updated with every field next carries
func (e StatusEvent) Merge(next StatusEvent) StatusEvent {
	if next.Status != "" {
		e.Status = next.Status
		e.Error = next.Error
	}
	if next.Progress >= 0 {
		e.Progress = next.Progress
	}
	if next.EtaMillis >= 0 {
		e.EtaMillis = next.EtaMillis
	}
	if next.BytesDownloaded >= 0 {
		e.BytesDownloaded = next.BytesDownloaded
	}
	if next.TotalSize >= 0 {
		e.TotalSize = next.TotalSize
	}
	if next.File != "" {
		e.File = next.File
	}
	return e
}

// WithEvent returns a copy of the model with the event applied
func (d DownloadModel) WithEvent(event StatusEvent) DownloadModel {
	if event.Status != "" {
		d.Status = event.Status
	}
	d.Error = event.Error
	if d.Error == "" {
		d.Error = ErrorNone
	}
	if event.Progress >= 0 {
		d.Progress = clampProgress(event.Progress)
	}
	d.EtaMillis = event.EtaMillis
	if event.BytesDownloaded >= 0 {
		d.BytesDownloaded = event.BytesDownloaded
	}
	if event.TotalSize >= 0 {
		d.TotalSize = event.TotalSize
	}
	if event.File != "" {
		d.File = event.File
	}
	return d
}

// SameState reports whether two models carry the same observable state
func (d DownloadModel) SameState(other DownloadModel) bool {
	return d.DownloadID == other.DownloadID &&
		d.Book == other.Book &&
		d.File == other.File &&
		d.EtaMillis == other.EtaMillis &&
		d.BytesDownloaded == other.BytesDownloaded &&
		d.TotalSize == other.TotalSize &&
		d.Progress == other.Progress &&
		d.Status == other.Status &&
		d.Error == other.Error
}

// ToBookOnDisk converts a completed download into a book on disk
func (d DownloadModel) ToBookOnDisk() *BookOnDisk {
	return NewBookOnDisk(d.Book, d.File)
}

// ReadableState returns the label shown for this download
func (d DownloadModel) ReadableState() string {
	return ReadableState(d.Status, d.Error, d.Book.URL)
}

// CalculateProgress returns a whole percentage of bytes over total
func CalculateProgress(bytesDownloaded, totalBytes int64) int {
	if totalBytes <= 0 {
		return 0
	}
	return clampProgress(int(float64(bytesDownloaded) / float64(totalBytes) * 100))
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
