package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Library      LibraryConfig      `mapstructure:"library" yaml:"library"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LibraryConfig contains download and book storage configuration
type LibraryConfig struct {
	BaseDir          string        `mapstructure:"base_dir" yaml:"base_dir"`
	BooksDir         string        `mapstructure:"books_dir" yaml:"books_dir"`
	DatabasePath     string        `mapstructure:"database_path" yaml:"database_path"`
	LockFile         string        `mapstructure:"lock_file" yaml:"lock_file"`
	ChunkSize        int64         `mapstructure:"chunk_size" yaml:"chunk_size"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit" yaml:"concurrent_limit"`
	CheckInterval    time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	AutoStartMonitor bool          `mapstructure:"auto_start_monitor" yaml:"auto_start_monitor"`
}

// LogsDir returns the directory holding category log files
func (c LibraryConfig) LogsDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Method  string `mapstructure:"method" yaml:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json, console
	OutputPath string `mapstructure:"output_path" yaml:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Library: LibraryConfig{
			BaseDir:          "$HOME/.zimshelf",
			BooksDir:         "$HOME/.zimshelf/books",
			DatabasePath:     "$HOME/.zimshelf/library.db",
			LockFile:         "$HOME/.zimshelf/server.lock",
			ChunkSize:        ChunkSize,
			ConcurrentLimit:  2,
			CheckInterval:    5 * time.Second,
			RequestTimeout:   30 * time.Second,
			AutoStartMonitor: true,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
