package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, ChunkSize, config.Library.ChunkSize)
	assert.Equal(t, 2, config.Library.ConcurrentLimit)
	assert.Equal(t, 5*time.Second, config.Library.CheckInterval)
	assert.True(t, config.Library.AutoStartMonitor)
	assert.False(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLibraryConfig_LogsDir(t *testing.T) {
	config := LibraryConfig{BaseDir: "/data/zimshelf"}
	assert.Equal(t, "/data/zimshelf/logs", config.LogsDir())
}
