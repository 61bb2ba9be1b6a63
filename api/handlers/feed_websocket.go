package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/pkg/live"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served to the local dashboard and CLI only
	},
}

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// streamFeed upgrades the request and writes every snapshot of feed as a JSON
// array until the client goes away
func streamFeed[T any](c *gin.Context, feed *live.Feed[T], log *zap.Logger) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshots := make(chan []T)
	sub := feed.Subscribe(func(snapshot []T) {
		select {
		case snapshots <- snapshot:
		case <-done:
		}
	})
	defer sub.Cancel()

	log.Debug("Feed client connected", zap.String("path", c.Request.URL.Path),
		zap.String("remote_addr", c.Request.RemoteAddr))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot := <-snapshots:
			if snapshot == nil {
				snapshot = []T{}
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshot); err != nil {
				log.Debug("Failed to send snapshot", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.Done():
			return
		case <-done:
			return
		}
	}
}
