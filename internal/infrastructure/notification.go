package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
)

// NotificationService handles sending notifications
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
	}
}

// Send shows a desktop notification. Disabled or unknown methods are a no-op.
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	cmd := n.command(title, message)
	if cmd == nil {
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

func (n *NotificationService) command(title, message string) *exec.Cmd {
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %s with title %s`, appleString(message), appleString(title))
		return exec.Command("osascript", "-e", script)
	case "notify-send":
		return exec.Command("notify-send", "--app-name=zimshelf", title, message)
	default:
		return nil
	}
}

// appleString quotes s as an AppleScript string literal
func appleString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// NotifyDownloadQueued sends notification when a book download is enqueued
func (n *NotificationService) NotifyDownloadQueued(book domain.Book) {
	title := "Download Queued"
	message := fmt.Sprintf("Added to queue: %s", truncateString(bookLabel(book), 40))
	n.Send(title, message)
}

// NotifyDownloadCompleted sends notification when a book lands on disk
func (n *NotificationService) NotifyDownloadCompleted(book domain.Book) {
	title := "Download Completed"
	message := fmt.Sprintf("Ready: %s", truncateString(bookLabel(book), 40))
	n.Send(title, message)
}

// NotifyDownloadFailed sends notification with the readable failure reason
func (n *NotificationService) NotifyDownloadFailed(download domain.DownloadModel) {
	title := "Download Failed"
	message := fmt.Sprintf("%s: %s", truncateString(bookLabel(download.Book), 30), download.ReadableState())
	n.Send(title, message)
}

func bookLabel(book domain.Book) string {
	if book.Title != "" {
		return book.Title
	}
	if book.Name != "" {
		return book.Name
	}
	return book.URL
}

// truncateString cuts s to maxLen bytes and marks the cut
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

