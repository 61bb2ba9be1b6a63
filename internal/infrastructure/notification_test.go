package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
)

func TestNotificationService_DisabledIsNoop(t *testing.T) {
	n := NewNotificationService(&domain.NotificationConfig{Enabled: false, Method: "osascript"}, zap.NewNop())
	assert.NoError(t, n.Send("Download Completed", "Ready: wikipedia"))
}

func TestNotificationService_UnknownMethod(t *testing.T) {
	n := NewNotificationService(&domain.NotificationConfig{Enabled: true, Method: "pigeon"}, zap.NewNop())
	assert.Nil(t, n.command("t", "m"))
	assert.NoError(t, n.Send("t", "m"))
}

func TestNotificationService_Command(t *testing.T) {
	n := NewNotificationService(&domain.NotificationConfig{Enabled: true, Method: "osascript"}, zap.NewNop())
	cmd := n.command(`Say "hi"`, `C:\books`)
	assert.Equal(t, []string{"osascript", "-e", `display notification "C:\\books" with title "Say \"hi\""`}, cmd.Args)

	n.config.Method = "notify-send"
	cmd = n.command("Download Failed", "wikipedia: Failed")
	assert.Equal(t, []string{"notify-send", "--app-name=zimshelf", "Download Failed", "wikipedia: Failed"}, cmd.Args)
}

func TestBookLabel(t *testing.T) {
	assert.Equal(t, "Wikipedia", bookLabel(domain.Book{Title: "Wikipedia", Name: "wikipedia_en"}))
	assert.Equal(t, "wikipedia_en", bookLabel(domain.Book{Name: "wikipedia_en"}))
	assert.Equal(t, "http://x/y.zim", bookLabel(domain.Book{URL: "http://x/y.zim"}))
	assert.Equal(t, "abc...", truncateString("abcdef", 3))
}
