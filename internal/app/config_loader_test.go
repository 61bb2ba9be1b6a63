package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/zimshelf/internal/domain"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
library:
  base_dir: ` + dir + `
  books_dir: ` + filepath.Join(dir, "books") + `
  database_path: ` + filepath.Join(dir, "library.db") + `
  chunk_size: 1048576
  concurrent_limit: 3
  check_interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, int64(1048576), config.Library.ChunkSize)
	assert.Equal(t, 3, config.Library.ConcurrentLimit)
	assert.Equal(t, 2*time.Second, config.Library.CheckInterval)
	assert.Equal(t, filepath.Join(dir, "books"), config.Library.BooksDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("library:\n  concurrent_limit: 0\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "books"), expandPath("~/books"))
	assert.Equal(t, home+"/lib", expandPath("$HOME/lib"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	config := domain.DefaultConfig()
	config.Server.Port = 9100
	config.Library.BaseDir = dir
	config.Library.BooksDir = filepath.Join(dir, "books")
	config.Library.DatabasePath = filepath.Join(dir, "library.db")

	path := filepath.Join(dir, "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, loaded.Server.Port)
	assert.Equal(t, config.Library.BooksDir, loaded.Library.BooksDir)
	assert.Equal(t, config.Library.ChunkSize, loaded.Library.ChunkSize)
}

func TestLoadConfig_EnvOverridesOmittedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644))

	t.Setenv("ZIMSHELF_LIBRARY_CHUNK_SIZE", "4096")
	t.Setenv("ZIMSHELF_LOGGING_LEVEL", "debug")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, int64(4096), config.Library.ChunkSize)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 5*time.Second, config.Library.CheckInterval)
}

func TestLoadConfig_UnknownLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unknown log format")
}
