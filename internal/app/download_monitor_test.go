package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/infrastructure"
)

func setupTestMonitor(t *testing.T) (*DownloadMonitor, *fakeRequester, *DownloadTracker, *infrastructure.SQLiteRepository) {
	t.Helper()
	repo := setupTestStore(t)
	tracker := NewDownloadTracker(repo, nil, nil)
	requester := newFakeRequester()
	config := &domain.LibraryConfig{CheckInterval: time.Hour}
	monitor := NewDownloadMonitor(requester, tracker, nil, config, nil, nil)
	return monitor, requester, tracker, repo
}

func progressEvent(id, downloaded, total int64) domain.StatusEvent {
	event := domain.NewStatusEvent(id, domain.StatusDownloading, domain.ErrorNone)
	event.BytesDownloaded = downloaded
	event.TotalSize = total
	return event
}

func TestDownloadMonitor_Add(t *testing.T) {
	monitor, requester, _, _ := setupTestMonitor(t)

	download, err := monitor.Add(context.Background(), "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)
	assert.Equal(t, int64(101), download.DownloadID)
	assert.Equal(t, "http://x/y.zim", download.Book.URL)
	assert.Equal(t, domain.StatusNone, download.Status)

	require.Len(t, requester.requests, 1)
	assert.Equal(t, "http://x/y.zim", requester.requests[0].URL)
	assert.Equal(t, 1, requester.requests[0].NotificationID)
}

func TestDownloadMonitor_AddDuplicateBook(t *testing.T) {
	monitor, requester, _, _ := setupTestMonitor(t)

	_, err := monitor.Add(context.Background(), "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)

	_, err = monitor.Add(context.Background(), "http://mirror/y.zim", domain.Book{ID: "y"})
	assert.ErrorIs(t, err, domain.ErrDownloadExists)
	assert.Equal(t, 1, requester.requestCount())
}

func TestDownloadMonitor_AddInvalid(t *testing.T) {
	monitor, requester, _, _ := setupTestMonitor(t)

	_, err := monitor.Add(context.Background(), "http://x/", domain.Book{ID: "y"})
	assert.Error(t, err)

	_, err = monitor.Add(context.Background(), "http://x/y.zim", domain.Book{})
	assert.Error(t, err)
	assert.Equal(t, 0, requester.requestCount())
}

func TestDownloadMonitor_AppliesEvents(t *testing.T) {
	monitor, requester, tracker, _ := setupTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	download, err := monitor.Add(ctx, "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)

	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()
	assert.True(t, monitor.IsRunning())

	requester.events <- progressEvent(download.DownloadID, 50, 100)

	assert.Eventually(t, func() bool {
		d, err := tracker.Get(download.DownloadID)
		return err == nil && d.Status == domain.StatusDownloading && d.Progress == 50
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDownloadMonitor_CompletedBecomesBook(t *testing.T) {
	monitor, requester, tracker, repo := setupTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker.Start()
	defer tracker.Stop()

	download, err := monitor.Add(ctx, "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()

	event := domain.NewStatusEvent(download.DownloadID, domain.StatusCompleted, domain.ErrorNone)
	event.File = "/books/y.zim"
	event.BytesDownloaded = 100
	event.TotalSize = 100
	requester.events <- event

	assert.Eventually(t, func() bool {
		books, err := repo.FindAllBooks()
		return err == nil && len(books) == 1 && books[0].File == "/books/y.zim"
	}, 2*time.Second, 10*time.Millisecond)

	_, err = tracker.Get(download.DownloadID)
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound)
}

func TestDownloadMonitor_Cancel(t *testing.T) {
	monitor, requester, tracker, _ := setupTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	download, err := monitor.Add(ctx, "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()

	require.NoError(t, monitor.Cancel(download.DownloadID))
	assert.Equal(t, []int64{download.DownloadID}, requester.cancelled)

	assert.Eventually(t, func() bool {
		_, err := tracker.Get(download.DownloadID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDownloadMonitor_CancelUnknownHandle(t *testing.T) {
	monitor, requester, tracker, _ := setupTestMonitor(t)

	download, err := monitor.Add(context.Background(), "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)
	requester.forget(download.DownloadID)

	require.NoError(t, monitor.Cancel(download.DownloadID))

	_, err = tracker.Get(download.DownloadID)
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound)
}

func TestDownloadMonitor_UntrackedHandle(t *testing.T) {
	monitor, _, _, _ := setupTestMonitor(t)

	assert.ErrorIs(t, monitor.Pause(5), domain.ErrDownloadNotFound)
	assert.ErrorIs(t, monitor.Resume(5), domain.ErrDownloadNotFound)
	assert.ErrorIs(t, monitor.Cancel(5), domain.ErrDownloadNotFound)
}

func TestDownloadMonitor_PauseResume(t *testing.T) {
	monitor, requester, tracker, _ := setupTestMonitor(t)

	download, err := monitor.Add(context.Background(), "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)

	require.NoError(t, monitor.Pause(download.DownloadID))
	assert.Equal(t, []int64{download.DownloadID}, requester.paused)
	require.NoError(t, monitor.handleEvent(domain.NewStatusEvent(download.DownloadID, domain.StatusPaused, domain.ErrorNone)))

	require.NoError(t, monitor.Resume(download.DownloadID))
	d, err := tracker.Get(download.DownloadID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, d.Status)
}

func TestDownloadMonitor_FailedKeepsRow(t *testing.T) {
	monitor, _, tracker, _ := setupTestMonitor(t)

	download, err := monitor.Add(context.Background(), "http://x/y.zim", domain.Book{ID: "y"})
	require.NoError(t, err)

	require.NoError(t, monitor.handleEvent(domain.NewStatusEvent(download.DownloadID, domain.StatusFailed, domain.ErrorHTTPNotFound)))

	d, err := tracker.Get(download.DownloadID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, d.Status)
	assert.Equal(t, domain.ErrorHTTPNotFound, d.Error)
}

func TestDownloadMonitor_Estimate(t *testing.T) {
	monitor, _, _, _ := setupTestMonitor(t)
	clock := time.Unix(1000, 0)
	monitor.now = func() time.Time { return clock }

	assert.Equal(t, int64(-1), monitor.estimate(progressEvent(1, 10, 100)))

	clock = clock.Add(time.Second)
	// 10 bytes per second with 80 left
	assert.Equal(t, int64(8000), monitor.estimate(progressEvent(1, 20, 100)))

	// no new bytes yet
	monitor.resetStart(1)
	assert.Equal(t, int64(-1), monitor.estimate(progressEvent(1, 20, 100)))
	assert.Equal(t, int64(-1), monitor.estimate(progressEvent(1, 20, 100)))
}

func TestDownloadMonitor_ReconcileDropsForgottenHandles(t *testing.T) {
	monitor, requester, tracker, _ := setupTestMonitor(t)

	kept, err := monitor.Add(context.Background(), "http://x/a.zim", domain.Book{ID: "a"})
	require.NoError(t, err)
	lost, err := monitor.Add(context.Background(), "http://x/b.zim", domain.Book{ID: "b"})
	require.NoError(t, err)
	requester.forget(lost.DownloadID)

	monitor.reconcile()

	d, err := tracker.Get(kept.DownloadID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, d.Status)

	_, err = tracker.Get(lost.DownloadID)
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound)
}

func TestDownloadMonitor_StartRecoversDownloads(t *testing.T) {
	monitor, requester, tracker, _ := setupTestMonitor(t)

	require.NoError(t, tracker.Insert(5, domain.Book{ID: "a", URL: "http://x/a.zim"}))
	require.NoError(t, tracker.Insert(6, domain.Book{ID: "b", URL: "http://x/b.zim"}))
	require.NoError(t, tracker.Update(domain.NewStatusEvent(6, domain.StatusPaused, domain.ErrorNone)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, monitor.Start(ctx))
	defer monitor.Stop()

	assert.Equal(t, 2, requester.requestCount())

	all, err := tracker.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []int64{all[0].DownloadID, all[1].DownloadID}
	assert.ElementsMatch(t, []int64{101, 102}, ids)

	requester.mu.Lock()
	defer requester.mu.Unlock()
	require.Len(t, requester.paused, 1)
	assert.Equal(t, int64(102), requester.paused[0])
}

func TestDownloadMonitor_StartStop(t *testing.T) {
	monitor, _, _, _ := setupTestMonitor(t)
	ctx := context.Background()

	require.NoError(t, monitor.Start(ctx))
	assert.Error(t, monitor.Start(ctx))
	require.NoError(t, monitor.Stop())
	assert.False(t, monitor.IsRunning())
	assert.Error(t, monitor.Stop())
}
