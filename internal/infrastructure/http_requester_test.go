package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/zimshelf/internal/domain"
)

func testContent(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return data
}

func contentServer(t *testing.T, data []byte, ranges *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ranges != nil {
			mu.Lock()
			*ranges = append(*ranges, r.Header.Get("Range"))
			mu.Unlock()
		}
		http.ServeContent(w, r, "y.zim", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func setupTestRequester(t *testing.T, chunkSize int64) (*HTTPRequester, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	requester := NewHTTPRequester(HTTPRequesterConfig{
		Dir:             "/books",
		ChunkSize:       chunkSize,
		ConcurrentLimit: 2,
		RequestTimeout:  5 * time.Second,
	}, fsys, nil)
	t.Cleanup(requester.Close)
	return requester, fsys
}

func waitForStatus(t *testing.T, requester *HTTPRequester, id int64, status domain.DownloadStatus) domain.StatusEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event := <-requester.Events():
			if event.DownloadID == id && event.Status == status {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", status)
			return domain.StatusEvent{}
		}
	}
}

func TestHTTPRequester_SingleChunk(t *testing.T) {
	data := testContent(8)
	server := contentServer(t, data, nil)
	requester, fsys := setupTestRequester(t, 10)

	id, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: server.URL + "/y.zim"})
	require.NoError(t, err)

	event := waitForStatus(t, requester, id, domain.StatusCompleted)
	assert.Equal(t, "/books/y.zim", event.File)
	assert.Equal(t, int64(8), event.TotalSize)

	got, err := afero.ReadFile(fsys, "/books/y.zim")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	for _, leftover := range []string{"/books/y.zim.part", "/books/y.zim.part.part"} {
		exists, _ := afero.Exists(fsys, leftover)
		assert.False(t, exists, leftover)
	}

	status, ok := requester.Status(id)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, status.Status)
}

func TestHTTPRequester_MultipleChunks(t *testing.T) {
	data := testContent(35)
	var ranges []string
	server := contentServer(t, data, &ranges)
	requester, fsys := setupTestRequester(t, 10)

	id, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: server.URL + "/y.zim"})
	require.NoError(t, err)

	event := waitForStatus(t, requester, id, domain.StatusCompleted)
	assert.Equal(t, "/books/y.zimaa", event.File)

	var joined []byte
	for _, suffix := range []string{"aa", "ab", "ac", "ad"} {
		part, err := afero.ReadFile(fsys, "/books/y.zim"+suffix)
		require.NoError(t, err, suffix)
		joined = append(joined, part...)
	}
	assert.Equal(t, data, joined)
	assert.Equal(t, []string{"bytes=0-0", "bytes=0-10", "bytes=11-21", "bytes=22-32", "bytes=33-"}, ranges)
}

func TestHTTPRequester_ResumesPartialChunk(t *testing.T) {
	data := testContent(15)
	var ranges []string
	server := contentServer(t, data, &ranges)
	requester, fsys := setupTestRequester(t, 10)

	require.NoError(t, fsys.MkdirAll("/books", 0755))
	require.NoError(t, afero.WriteFile(fsys, "/books/y.zimaa.part.part", data[:5], 0644))

	id, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: server.URL + "/y.zim"})
	require.NoError(t, err)
	waitForStatus(t, requester, id, domain.StatusCompleted)

	first, err := afero.ReadFile(fsys, "/books/y.zimaa")
	require.NoError(t, err)
	assert.Equal(t, data[:11], first)
	assert.Contains(t, ranges, "bytes=5-10")
}

func TestHTTPRequester_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	requester, _ := setupTestRequester(t, 10)

	id, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: server.URL + "/missing.zim"})
	require.NoError(t, err)

	event := waitForStatus(t, requester, id, domain.StatusFailed)
	assert.Equal(t, domain.ErrorHTTPNotFound, event.Error)
}

func TestHTTPRequester_InvalidURL(t *testing.T) {
	requester, _ := setupTestRequester(t, 10)
	_, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: "http://x/"})
	assert.Error(t, err)
}

func blockingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-0/100")
		w.WriteHeader(http.StatusPartialContent)
		if r.Header.Get("Range") == "bytes=0-0" {
			w.Write([]byte{'a'})
			return
		}
		w.Write([]byte("abc"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPRequester_PauseResumeCancel(t *testing.T) {
	server := blockingServer(t)
	requester, fsys := setupTestRequester(t, 1000)

	id, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: server.URL + "/y.zim"})
	require.NoError(t, err)
	waitForStatus(t, requester, id, domain.StatusDownloading)

	require.NoError(t, requester.Pause(id))
	waitForStatus(t, requester, id, domain.StatusPaused)

	partial, err := afero.ReadFile(fsys, "/books/y.zim.part.part")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), partial)

	require.NoError(t, requester.Resume(id))
	waitForStatus(t, requester, id, domain.StatusQueued)

	require.NoError(t, requester.Cancel(id))
	event := waitForStatus(t, requester, id, domain.StatusCancelled)
	assert.Equal(t, domain.ErrorCancelled, event.Error)

	_, ok := requester.Status(id)
	assert.False(t, ok)

	// cancelling keeps what was written
	partial, err = afero.ReadFile(fsys, "/books/y.zim.part.part")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(partial, []byte("abc")))
}

func TestHTTPRequester_PauseDuringProbeThenResume(t *testing.T) {
	data := testContent(8)
	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		first := requests == 1
		mu.Unlock()
		if first {
			// hold the first probe until the client gives up
			<-r.Context().Done()
			return
		}
		http.ServeContent(w, r, "y.zim", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	requester, fsys := setupTestRequester(t, 10)

	id, err := requester.Enqueue(context.Background(), domain.DownloadRequest{URL: server.URL + "/y.zim"})
	require.NoError(t, err)
	waitForStatus(t, requester, id, domain.StatusQueued)

	require.NoError(t, requester.Pause(id))
	waitForStatus(t, requester, id, domain.StatusPaused)
	require.NoError(t, requester.Resume(id))

	event := waitForStatus(t, requester, id, domain.StatusCompleted)
	assert.Equal(t, "/books/y.zim", event.File)
	assert.Equal(t, int64(8), event.TotalSize)

	got, err := afero.ReadFile(fsys, "/books/y.zim")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestHTTPRequester_UnknownHandle(t *testing.T) {
	requester, _ := setupTestRequester(t, 10)

	assert.ErrorIs(t, requester.Pause(99), domain.ErrDownloadNotFound)
	assert.ErrorIs(t, requester.Resume(99), domain.ErrDownloadNotFound)
	assert.ErrorIs(t, requester.Cancel(99), domain.ErrDownloadNotFound)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.DownloadError
	}{
		{"nil", nil, domain.ErrorNone},
		{"not found", &httpStatusError{code: 404}, domain.ErrorHTTPNotFound},
		{"server error", fmt.Errorf("wrapped: %w", &httpStatusError{code: 500}), domain.ErrorHTTPDataError},
		{"redirects", fmt.Errorf("get: %w", errTooManyRedirects), domain.ErrorTooManyRedirects},
		{"cannot resume", errCannotResume, domain.ErrorCannotResume},
		{"no space", &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, domain.ErrorInsufficientSpace},
		{"timeout", timeoutError{}, domain.ErrorConnectionTimedOut},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, domain.ErrorNoNetworkConnection},
		{"file", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, domain.ErrorFileError},
		{"other", errors.New("boom"), domain.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyError(tt.err))
		})
	}
}
