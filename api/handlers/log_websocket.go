package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/pkg/logger"
)

// LogWebSocketHandler streams category logs over WebSocket
type LogWebSocketHandler struct {
	logReader *logger.LogReader
	logger    *zap.Logger
}

// NewLogWebSocketHandler creates a new WebSocket handler
func NewLogWebSocketHandler(logsDir string, log *zap.Logger) *LogWebSocketHandler {
	return &LogWebSocketHandler{
		logReader: logger.NewLogReader(logsDir),
		logger:    log,
	}
}

// HandleWebSocket handles GET /api/v1/logs/stream?category=...
func (h *LogWebSocketHandler) HandleWebSocket(c *gin.Context) {
	category := logger.LogCategory(c.DefaultQuery("category", string(logger.CategoryDownload)))
	if !logger.ValidCategory(category) {
		category = logger.CategoryDownload
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected",
		zap.String("category", string(category)),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Send the last 50 entries first
	entries, err := h.logReader.ReadLogs(category, time.Now(), 50)
	if err == nil {
		for _, entry := range entries {
			if err := conn.WriteJSON(entry); err != nil {
				h.logger.Error("Failed to send initial logs", zap.Error(err))
				return
			}
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	entryChan := make(chan logger.LogEntry, 100)
	go func() {
		if err := h.logReader.TailLogs(ctx, category, entryChan); err != nil {
			h.logger.Error("Log tailing error", zap.Error(err))
		}
	}()

	// Read messages from client (for ping/pong)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entryChan:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(entry); err != nil {
				h.logger.Error("Failed to send log entry", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
