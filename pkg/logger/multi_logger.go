package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryDownload LogCategory = "download" // Download lifecycle events (JSON)
	CategoryLibrary  LogCategory = "library"  // Book library changes (JSON)
	CategoryError    LogCategory = "error"    // Application errors (JSON)
)

// Categories lists every log category in display order
var Categories = []LogCategory{CategoryDownload, CategoryLibrary, CategoryError}

// ValidCategory reports whether c names a known category
func ValidCategory(c LogCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// MultiLogger provides categorized logging with separate output files
type MultiLogger struct {
	loggers     map[LogCategory]*zap.Logger
	config      MultiLoggerConfig
	mu          sync.RWMutex
	currentDate string // Track current date for log rotation
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	// Ensure logs directory exists
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers:     make(map[LogCategory]*zap.Logger),
		config:      config,
		currentDate: time.Now().Format("20060102"),
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	for _, category := range []LogCategory{CategoryDownload, CategoryLibrary} {
		l, err := ml.createStructuredLogger(category, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.loggers[category] = l
	}

	// Create structured logger for error (JSON format for application errors)
	errorLogger, err := ml.createStructuredLogger(CategoryError, zapcore.ErrorLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create error logger: %w", err)
	}
	ml.loggers[CategoryError] = errorLogger

	return ml, nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, level zapcore.Level) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = "" // Don't include caller for cleaner logs

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	logPath := ml.getCategoryLogPath(category)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	writer := zapcore.AddSync(file)
	core := zapcore.NewCore(encoder, writer, level)

	return zap.New(core), nil
}

// getCategoryLogPath generates a log file path for a category with current date
func (ml *MultiLogger) getCategoryLogPath(category LogCategory) string {
	dateStr := time.Now().Format("20060102")
	filename := fmt.Sprintf("%s-%s.log", category, dateStr)
	return filepath.Join(ml.config.LogsDir, filename)
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}

	// Return error logger as fallback
	return ml.loggers[CategoryError]
}

// Download returns the download lifecycle logger (JSON format)
func (ml *MultiLogger) Download() *zap.Logger {
	return ml.GetLogger(CategoryDownload)
}

// Library returns the book library logger (JSON format)
func (ml *MultiLogger) Library() *zap.Logger {
	return ml.GetLogger(CategoryLibrary)
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogDownloadEvent logs a download lifecycle event with structured data
func (ml *MultiLogger) LogDownloadEvent(event string, fields ...zap.Field) {
	ml.Download().Info(event, fields...)
}

// LogLibraryEvent logs a change to the books on disk
func (ml *MultiLogger) LogLibraryEvent(event string, fields ...zap.Field) {
	ml.Library().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error

	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Close closes all loggers
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error

	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
