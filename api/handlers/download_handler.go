package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/app"
	"github.com/yourusername/zimshelf/internal/domain"
)

// StatsProvider reports library counters
type StatsProvider interface {
	GetStats() (*domain.LibraryStats, error)
}

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	monitor *app.DownloadMonitor
	tracker *app.DownloadTracker
	stats   StatsProvider
	logger  *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(monitor *app.DownloadMonitor, tracker *app.DownloadTracker, stats StatsProvider, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		monitor: monitor,
		tracker: tracker,
		stats:   stats,
		logger:  logger,
	}
}

// AddDownloadRequest represents a request to add a download
type AddDownloadRequest struct {
	URL  string      `json:"url" binding:"required"`
	Book domain.Book `json:"book"`
}

// DownloadResponse is a tracked download plus its display label
type DownloadResponse struct {
	*domain.DownloadModel
	State string `json:"state"`
}

func newDownloadResponse(d *domain.DownloadModel) DownloadResponse {
	return DownloadResponse{DownloadModel: d, State: d.ReadableState()}
}

// AddDownload handles POST /api/v1/downloads
func (h *DownloadHandler) AddDownload(c *gin.Context) {
	var req AddDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Book.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book.id is required"})
		return
	}
	if domain.FileNameFromURL(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url does not name a file"})
		return
	}

	download, err := h.monitor.Add(c.Request.Context(), req.URL, req.Book)
	if err != nil {
		h.logger.Error("Failed to add download", zap.String("url", req.URL), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newDownloadResponse(download))
}

// GetDownload handles GET /api/v1/downloads/:id
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	id, ok := parseDownloadID(c)
	if !ok {
		return
	}

	download, err := h.tracker.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newDownloadResponse(download))
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	downloads, err := h.tracker.List()
	if err != nil {
		h.logger.Error("Failed to list downloads", zap.Error(err))
		respondError(c, err)
		return
	}

	status := domain.DownloadStatus(c.Query("status"))
	response := make([]DownloadResponse, 0, len(downloads))
	for _, d := range downloads {
		if status != "" && d.Status != status {
			continue
		}
		response = append(response, newDownloadResponse(d))
	}

	c.JSON(http.StatusOK, response)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.stats.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// PauseDownload handles POST /api/v1/downloads/:id/pause
func (h *DownloadHandler) PauseDownload(c *gin.Context) {
	id, ok := parseDownloadID(c)
	if !ok {
		return
	}

	if err := h.monitor.Pause(id); err != nil {
		h.logger.Error("Failed to pause download", zap.Int64("download_id", id), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download paused"})
}

// ResumeDownload handles POST /api/v1/downloads/:id/resume
func (h *DownloadHandler) ResumeDownload(c *gin.Context) {
	id, ok := parseDownloadID(c)
	if !ok {
		return
	}

	if err := h.monitor.Resume(id); err != nil {
		h.logger.Error("Failed to resume download", zap.Int64("download_id", id), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download resumed"})
}

// CancelDownload handles POST /api/v1/downloads/:id/cancel
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	id, ok := parseDownloadID(c)
	if !ok {
		return
	}

	if err := h.monitor.Cancel(id); err != nil {
		h.logger.Error("Failed to cancel download", zap.Int64("download_id", id), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download cancelled"})
}

// WatchDownloads handles GET /api/v1/downloads/watch
func (h *DownloadHandler) WatchDownloads(c *gin.Context) {
	streamFeed(c, h.tracker.Downloads(), h.logger)
}
