package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/zimshelf/internal/app"
	"github.com/yourusername/zimshelf/internal/domain"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	monitor *app.DownloadMonitor
	stats   StatsProvider
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(monitor *app.DownloadMonitor, stats StatsProvider, version string) *HealthHandler {
	return &HealthHandler{
		monitor: monitor,
		stats:   stats,
		version: version,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Monitor struct {
		Running bool `json:"running"`
	} `json:"monitor"`
	Library *domain.LibraryStats `json:"library,omitempty"`
}

// Health handles GET /health. A failing stats query degrades the status
// but still answers 200 so the CLI sees a live server.
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	response.Monitor.Running = h.monitor.IsRunning()

	stats, err := h.stats.GetStats()
	if err != nil {
		response.Status = "degraded"
	} else {
		response.Library = stats
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.monitor.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "download monitor not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
