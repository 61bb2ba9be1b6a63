package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/api"
	"github.com/yourusername/zimshelf/internal/app"
	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/infrastructure"
	"github.com/yourusername/zimshelf/internal/zimfile"
	"github.com/yourusername/zimshelf/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zimshelf-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return err
	}

	// Only one server may own the library
	lock := flock.New(config.Library.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", config.Library.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another server holds %s", config.Library.LockFile)
	}
	defer lock.Unlock()

	log, err := logger.New(logger.Config{
		Name:       "server",
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Category logs: download, library, error
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Library.LogsDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting zimshelf server",
		zap.String("version", api.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("books_dir", config.Library.BooksDir),
		zap.Int64("chunk_size", config.Library.ChunkSize))

	repo, err := infrastructure.NewSQLiteRepository(config.Library.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	locator := zimfile.NewLocator(nil, log)
	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	requester := infrastructure.NewHTTPRequester(infrastructure.HTTPRequesterConfig{
		Dir:             config.Library.BooksDir,
		ChunkSize:       config.Library.ChunkSize,
		ConcurrentLimit: config.Library.ConcurrentLimit,
		RequestTimeout:  config.Library.RequestTimeout,
	}, locator.Fs(), log)
	defer requester.Close()

	tracker := app.NewDownloadTracker(repo, multiLog, log)
	library := app.NewBookLibrary(repo, repo, locator, multiLog, log)
	monitor := app.NewDownloadMonitor(requester, tracker, notifier, &config.Library, multiLog, log)

	tracker.Start()
	defer tracker.Stop()
	library.Start()
	defer library.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Library.AutoStartMonitor {
		if err := monitor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start download monitor: %w", err)
		}
	}

	router := api.SetupRouter(api.Services{
		Library:     library,
		Tracker:     tracker,
		Monitor:     monitor,
		Locator:     locator,
		Stats:       repo,
		Config:      &config.Library,
		Logger:      log,
		MultiLogger: multiLog,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		return err
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if monitor.IsRunning() {
		if err := monitor.Stop(); err != nil {
			log.Error("Error stopping download monitor", zap.Error(err))
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Library.BaseDir,
		config.Library.BooksDir,
		config.Library.LogsDir(),
		filepath.Dir(config.Library.DatabasePath),
		filepath.Dir(config.Library.LockFile),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
