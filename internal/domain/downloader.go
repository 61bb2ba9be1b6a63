package domain

import "context"

// DownloadRequest asks the requester to fetch one book archive
type DownloadRequest struct {
	URL            string
	NotificationID int
}

// DownloadRequester issues the HTTP range requests for each chunk and reports
// status through the Events channel
type DownloadRequester interface {
	// Enqueue starts a download and returns its handle
	Enqueue(ctx context.Context, request DownloadRequest) (int64, error)

	// Pause stops transferring without discarding chunk files
	Pause(downloadID int64) error

	// Resume continues a paused download from the bytes already on disk
	Resume(downloadID int64) error

	// Cancel stops a download and forgets its handle
	Cancel(downloadID int64) error

	// Status returns the latest known event for a handle
	Status(downloadID int64) (StatusEvent, bool)

	// Events delivers status callbacks
	Events() <-chan StatusEvent
}
