package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/infrastructure"
)

func setupTestStore(t *testing.T) *infrastructure.SQLiteRepository {
	t.Helper()
	repo, err := infrastructure.NewSQLiteRepository(filepath.Join(t.TempDir(), "library.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// fakeRequester records calls and lets tests drive status events by hand
type fakeRequester struct {
	mu         sync.Mutex
	nextID     int64
	statuses   map[int64]domain.StatusEvent
	requests   []domain.DownloadRequest
	paused     []int64
	cancelled  []int64
	events     chan domain.StatusEvent
	enqueueErr error
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{
		nextID:   100,
		statuses: make(map[int64]domain.StatusEvent),
		events:   make(chan domain.StatusEvent, 16),
	}
}

func (f *fakeRequester) Enqueue(ctx context.Context, request domain.DownloadRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	f.nextID++
	f.requests = append(f.requests, request)
	f.statuses[f.nextID] = domain.NewStatusEvent(f.nextID, domain.StatusQueued, domain.ErrorNone)
	return f.nextID, nil
}

func (f *fakeRequester) Pause(downloadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[downloadID]; !ok {
		return domain.ErrDownloadNotFound
	}
	f.paused = append(f.paused, downloadID)
	f.statuses[downloadID] = domain.NewStatusEvent(downloadID, domain.StatusPaused, domain.ErrorNone)
	return nil
}

func (f *fakeRequester) Resume(downloadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[downloadID]; !ok {
		return domain.ErrDownloadNotFound
	}
	f.statuses[downloadID] = domain.NewStatusEvent(downloadID, domain.StatusQueued, domain.ErrorNone)
	return nil
}

func (f *fakeRequester) Cancel(downloadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[downloadID]; !ok {
		return domain.ErrDownloadNotFound
	}
	f.cancelled = append(f.cancelled, downloadID)
	delete(f.statuses, downloadID)
	f.events <- domain.NewStatusEvent(downloadID, domain.StatusCancelled, domain.ErrorCancelled)
	return nil
}

func (f *fakeRequester) Status(downloadID int64) (domain.StatusEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.statuses[downloadID]
	return event, ok
}

func (f *fakeRequester) Events() <-chan domain.StatusEvent {
	return f.events
}

// forget drops a handle as if the requester had restarted
func (f *fakeRequester) forget(downloadID int64) {
	f.mu.Lock()
	delete(f.statuses, downloadID)
	f.mu.Unlock()
}

func (f *fakeRequester) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
