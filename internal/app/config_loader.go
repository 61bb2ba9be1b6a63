package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/zimshelf/internal/domain"
)

// LoadConfig reads the YAML config at configPath, or the first config.yaml found
// in ./configs, $HOME/.zimshelf and /etc/zimshelf. ZIMSHELF_* environment
// variables override file values (ZIMSHELF_LIBRARY_CHUNK_SIZE, ...).
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.zimshelf")
		v.AddConfigPath("/etc/zimshelf")
	}

	v.SetEnvPrefix("ZIMSHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the file omits.
func setDefaults(v *viper.Viper, config *domain.Config) {
	v.SetDefault("server.host", config.Server.Host)
	v.SetDefault("server.port", config.Server.Port)

	v.SetDefault("library.base_dir", config.Library.BaseDir)
	v.SetDefault("library.books_dir", config.Library.BooksDir)
	v.SetDefault("library.database_path", config.Library.DatabasePath)
	v.SetDefault("library.lock_file", config.Library.LockFile)
	v.SetDefault("library.chunk_size", config.Library.ChunkSize)
	v.SetDefault("library.concurrent_limit", config.Library.ConcurrentLimit)
	v.SetDefault("library.check_interval", config.Library.CheckInterval)
	v.SetDefault("library.request_timeout", config.Library.RequestTimeout)
	v.SetDefault("library.auto_start_monitor", config.Library.AutoStartMonitor)

	v.SetDefault("notification.enabled", config.Notification.Enabled)
	v.SetDefault("notification.method", config.Notification.Method)

	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("logging.output_path", config.Logging.OutputPath)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Library.BaseDir = expandPath(config.Library.BaseDir)
	config.Library.BooksDir = expandPath(config.Library.BooksDir)
	config.Library.DatabasePath = expandPath(config.Library.DatabasePath)
	config.Library.LockFile = expandPath(config.Library.LockFile)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// Expand environment variables
	path = os.ExpandEnv(path)

	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// Replace $HOME
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Library.BaseDir == "" {
		return fmt.Errorf("library base directory not configured")
	}

	if config.Library.BooksDir == "" {
		return fmt.Errorf("books directory not configured")
	}

	if config.Library.DatabasePath == "" {
		return fmt.Errorf("library database path not configured")
	}

	if config.Library.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}

	if config.Library.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Library.LockFile == "" {
		return fmt.Errorf("lock file not configured")
	}

	if config.Library.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive")
	}

	switch config.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format: %q", config.Logging.Format)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Marshal config to viper
	v.Set("server", config.Server)
	v.Set("library", config.Library)
	v.Set("notification", config.Notification)
	v.Set("logging", config.Logging)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

