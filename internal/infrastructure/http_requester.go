package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
)

const (
	userAgent        = "zimshelf/1.0"
	progressInterval = 500 * time.Millisecond
	copyBufferSize   = 32 * 1024
	maxRedirects     = 10
)

var (
	errTooManyRedirects = errors.New("stopped after 10 redirects")
	errCannotResume     = errors.New("server ignored range request")
)

// HTTPRequesterConfig configures the chunked HTTP downloader
type HTTPRequesterConfig struct {
	Dir             string
	ChunkSize       int64
	ConcurrentLimit int
	RequestTimeout  time.Duration
}

// HTTPRequester downloads books as byte-range chunks. A chunk is written to
// "<chunk>.part.part", renamed to "<chunk>.part" once its range is complete,
// and every chunk loses its ".part" suffix when the whole book is on disk.
type HTTPRequester struct {
	client  *http.Client
	fs      afero.Fs
	dir     string
	planner domain.ChunkPlanner
	logger  *zap.Logger

	sem    chan struct{}
	events chan domain.StatusEvent

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*requestJob
}

type requestJob struct {
	id      int64
	request domain.DownloadRequest

	cancel    context.CancelFunc
	running   bool
	paused    bool
	cancelled bool

	// set once by the first worker that probes; guarded by HTTPRequester.mu
	total  int64
	chunks []domain.Chunk
	latest domain.StatusEvent
}

// NewHTTPRequester creates a requester writing into config.Dir on fs
func NewHTTPRequester(config HTTPRequesterConfig, fsys afero.Fs, logger *zap.Logger) *HTTPRequester {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.RequestTimeout > 0 {
		transport.ResponseHeaderTimeout = config.RequestTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPRequester{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		fs:      fsys,
		dir:     config.Dir,
		planner: domain.NewChunkPlanner(config.ChunkSize),
		logger:  logger,
		sem:     make(chan struct{}, limit),
		events:  make(chan domain.StatusEvent, 256),
		baseCtx: ctx,
		stop:    cancel,
		// handles stay unique across restarts while old rows are recovered
		nextID: time.Now().UnixMilli(),
		jobs:   make(map[int64]*requestJob),
	}
}

// Events delivers status callbacks
func (r *HTTPRequester) Events() <-chan domain.StatusEvent {
	return r.events
}

// Enqueue registers a download and starts it once a slot is free
func (r *HTTPRequester) Enqueue(ctx context.Context, request domain.DownloadRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.baseCtx.Err() != nil {
		return 0, fmt.Errorf("requester is closed")
	}
	if domain.FileNameFromURL(request.URL) == "" {
		return 0, fmt.Errorf("invalid download url: %q", request.URL)
	}

	r.mu.Lock()
	r.nextID++
	job := &requestJob{
		id:      r.nextID,
		request: request,
		latest:  domain.NewStatusEvent(r.nextID, domain.StatusQueued, domain.ErrorNone),
	}
	r.jobs[job.id] = job
	r.startLocked(job)
	r.mu.Unlock()

	r.logger.Info("Download enqueued",
		zap.Int64("download_id", job.id),
		zap.String("url", request.URL))
	return job.id, nil
}

// Pause stops transferring without discarding chunk files
func (r *HTTPRequester) Pause(downloadID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[downloadID]
	if !ok {
		return domain.ErrDownloadNotFound
	}
	if job.paused {
		return nil
	}
	job.paused = true
	if job.running {
		job.cancel()
	}
	return nil
}

// Resume continues a paused download from the bytes already on disk
func (r *HTTPRequester) Resume(downloadID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[downloadID]
	if !ok {
		return domain.ErrDownloadNotFound
	}
	if !job.paused {
		return nil
	}
	job.paused = false
	if !job.running {
		r.startLocked(job)
	}
	return nil
}

// Cancel stops a download and forgets its handle
func (r *HTTPRequester) Cancel(downloadID int64) error {
	r.mu.Lock()
	job, ok := r.jobs[downloadID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrDownloadNotFound
	}
	job.cancelled = true
	if job.running {
		job.cancel()
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.finishCancelled(job)
	return nil
}

// Status returns the latest known event for a handle
func (r *HTTPRequester) Status(downloadID int64) (domain.StatusEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[downloadID]
	if !ok {
		return domain.StatusEvent{}, false
	}
	return job.latest, true
}

// Close stops every transfer and waits for workers to exit
func (r *HTTPRequester) Close() {
	r.stop()
	r.wg.Wait()
}

func (r *HTTPRequester) startLocked(job *requestJob) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	job.cancel = cancel
	job.running = true
	r.wg.Add(1)
	go r.run(ctx, job)
}

func (r *HTTPRequester) run(ctx context.Context, job *requestJob) {
	defer r.wg.Done()
	defer job.cancel()

	r.emit(job, domain.NewStatusEvent(job.id, domain.StatusQueued, domain.ErrorNone))

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		r.stopped(job, nil)
		return
	}

	err := r.download(ctx, job)
	if ctx.Err() != nil {
		r.stopped(job, err)
		return
	}
	if err != nil {
		r.fail(job, err)
		return
	}

	r.mu.Lock()
	job.running = false
	total := job.total
	r.mu.Unlock()

	event := domain.NewStatusEvent(job.id, domain.StatusCompleted, domain.ErrorNone)
	event.Progress = 100
	event.BytesDownloaded = total
	event.TotalSize = total
	event.EtaMillis = 0
	event.File = r.nominalPath(job, total)
	r.emit(job, event)

	r.logger.Info("Download completed",
		zap.Int64("download_id", job.id),
		zap.String("file", event.File))
}

// stopped handles a worker interrupted by Pause, Cancel or Close
func (r *HTTPRequester) stopped(job *requestJob, err error) {
	r.mu.Lock()
	job.running = false
	paused, cancelled := job.paused, job.cancelled
	if !paused && !cancelled && r.baseCtx.Err() == nil {
		// resumed before this worker noticed the pause
		r.startLocked(job)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	switch {
	case cancelled:
		r.finishCancelled(job)
	case paused:
		r.emit(job, domain.NewStatusEvent(job.id, domain.StatusPaused, domain.ErrorNone))
	default:
		r.logger.Debug("Download interrupted by shutdown",
			zap.Int64("download_id", job.id),
			zap.Error(err))
	}
}

func (r *HTTPRequester) fail(job *requestJob, err error) {
	r.mu.Lock()
	job.running = false
	r.mu.Unlock()

	reason := classifyError(err)
	r.logger.Error("Download failed",
		zap.Int64("download_id", job.id),
		zap.String("url", job.request.URL),
		zap.String("reason", string(reason)),
		zap.Error(err))
	r.emit(job, domain.NewStatusEvent(job.id, domain.StatusFailed, reason))
}

// finishCancelled reports the cancel and forgets the handle. Chunk files
// already written stay on disk until the book is deleted.
func (r *HTTPRequester) finishCancelled(job *requestJob) {
	r.emit(job, domain.NewStatusEvent(job.id, domain.StatusCancelled, domain.ErrorCancelled))

	r.mu.Lock()
	delete(r.jobs, job.id)
	r.mu.Unlock()
}

func (r *HTTPRequester) emit(job *requestJob, event domain.StatusEvent) {
	r.mu.Lock()
	if event.File == "" && job.total > 0 {
		event.File = r.nominalPath(job, job.total)
	}
	job.latest = job.latest.Merge(event)
	r.mu.Unlock()

	select {
	case r.events <- event:
	case <-r.baseCtx.Done():
	}
}

func (r *HTTPRequester) nominalPath(job *requestJob, total int64) string {
	return filepath.Join(r.dir, r.planner.NominalFileName(job.request.URL, total))
}

// plan returns the job's content length and chunks, probing the server the
// first time. A worker left over from a pause may still be emitting, so the
// fields are only touched under r.mu.
func (r *HTTPRequester) plan(ctx context.Context, job *requestJob) (int64, []domain.Chunk, error) {
	r.mu.Lock()
	total, chunks := job.total, job.chunks
	r.mu.Unlock()
	if total > 0 {
		return total, chunks, nil
	}

	total, err := r.probe(ctx, job.request.URL)
	if err != nil {
		return 0, nil, err
	}
	chunks = r.planner.ComputeChunks(job.request.URL, total, job.request.NotificationID)

	r.mu.Lock()
	job.total, job.chunks = total, chunks
	r.mu.Unlock()
	return total, chunks, nil
}

func (r *HTTPRequester) download(ctx context.Context, job *requestJob) error {
	total, chunks, err := r.plan(ctx, job)
	if err != nil {
		return err
	}
	if err := r.fs.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create books directory: %w", err)
	}

	progress := &progressReporter{requester: r, job: job, total: total}

	for _, chunk := range chunks {
		if err := r.fetchChunk(ctx, chunk, progress); err != nil {
			return err
		}
		progress.report(true)
	}

	for _, chunk := range chunks {
		final := filepath.Join(r.dir, chunk.FinalName())
		if err := r.fs.Rename(final+domain.PartExtension, final); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to finalize %s: %w", final, err)
		}
	}
	return nil
}

// probe asks for the first byte to learn the content length
func (r *HTTPRequester) probe(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		contentRange := resp.Header.Get("Content-Range")
		if idx := strings.LastIndex(contentRange, "/"); idx != -1 {
			if size, err := strconv.ParseInt(contentRange[idx+1:], 10, 64); err == nil {
				return size, nil
			}
		}
		return 0, &httpStatusError{code: resp.StatusCode}
	case http.StatusOK:
		if resp.ContentLength > 0 {
			return resp.ContentLength, nil
		}
		return 0, &httpStatusError{code: resp.StatusCode}
	default:
		return 0, &httpStatusError{code: resp.StatusCode}
	}
}

func (r *HTTPRequester) fetchChunk(ctx context.Context, chunk domain.Chunk, progress *progressReporter) error {
	final := filepath.Join(r.dir, chunk.FinalName())
	partPath := filepath.Join(r.dir, chunk.FileName)

	expected := chunk.ContentLength - chunk.RangeStart
	if !chunk.OpenEnded {
		expected = chunk.RangeEnd - chunk.RangeStart + 1
	}
	if expected < 0 {
		expected = 0
	}

	for _, done := range []string{final, final + domain.PartExtension} {
		if info, err := r.fs.Stat(done); err == nil {
			progress.add(info.Size())
			return nil
		}
	}

	var existing int64
	if info, err := r.fs.Stat(partPath); err == nil {
		existing = info.Size()
	}
	progress.add(existing)

	if existing < expected {
		if err := r.fetchRange(ctx, chunk, partPath, existing, progress); err != nil {
			return err
		}
	} else if existing == 0 {
		if err := afero.WriteFile(r.fs, partPath, nil, 0644); err != nil {
			return fmt.Errorf("failed to create chunk file: %w", err)
		}
	}

	if err := r.fs.Rename(partPath, final+domain.PartExtension); err != nil {
		return fmt.Errorf("failed to complete chunk %s: %w", chunk.FileName, err)
	}
	return nil
}

func (r *HTTPRequester) fetchRange(ctx context.Context, chunk domain.Chunk, partPath string, existing int64, progress *progressReporter) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunk.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	start := chunk.RangeStart + existing
	if chunk.OpenEnded {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, chunk.RangeEnd))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("range request failed: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if start != 0 || !chunk.OpenEnded {
			return errCannotResume
		}
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	default:
		return &httpStatusError{code: resp.StatusCode}
	}

	file, err := r.fs.OpenFile(partPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open chunk file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write chunk: %w", err)
			}
			progress.add(int64(n))
			progress.report(false)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}
	}
}

type progressReporter struct {
	requester *HTTPRequester
	job       *requestJob
	total     int64
	bytes     int64
	last      time.Time
}

func (p *progressReporter) add(n int64) {
	p.bytes += n
}

func (p *progressReporter) report(force bool) {
	if !force && time.Since(p.last) < progressInterval {
		return
	}
	p.last = time.Now()

	event := domain.NewStatusEvent(p.job.id, domain.StatusDownloading, domain.ErrorNone)
	event.BytesDownloaded = p.bytes
	event.TotalSize = p.total
	p.requester.emit(p.job, event)
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// classifyError maps a transfer failure to the reason shown to users
func classifyError(err error) domain.DownloadError {
	var statusErr *httpStatusError
	var netErr net.Error
	var opErr *net.OpError
	var pathErr *fs.PathError

	switch {
	case err == nil:
		return domain.ErrorNone
	case errors.As(err, &statusErr):
		return domain.ErrorFromHTTPStatus(statusErr.code)
	case errors.Is(err, errTooManyRedirects):
		return domain.ErrorTooManyRedirects
	case errors.Is(err, errCannotResume):
		return domain.ErrorCannotResume
	case errors.Is(err, syscall.ENOSPC):
		return domain.ErrorInsufficientSpace
	case errors.Is(err, fs.ErrExist):
		return domain.ErrorFileAlreadyExists
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.ErrorConnectionTimedOut
	case errors.As(err, &opErr):
		return domain.ErrorNoNetworkConnection
	case errors.As(err, &pathErr):
		return domain.ErrorFileError
	case errors.Is(err, io.ErrUnexpectedEOF):
		return domain.ErrorHTTPDataError
	default:
		return domain.ErrorUnknown
	}
}
