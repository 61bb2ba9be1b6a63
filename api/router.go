package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/api/handlers"
	"github.com/yourusername/zimshelf/api/middleware"
	"github.com/yourusername/zimshelf/internal/app"
	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/zimfile"
	"github.com/yourusername/zimshelf/pkg/logger"
	"github.com/yourusername/zimshelf/web"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Services bundles the components the HTTP API is served from
type Services struct {
	Library     *app.BookLibrary
	Tracker     *app.DownloadTracker
	Monitor     *app.DownloadMonitor
	Locator     *zimfile.Locator
	Stats       handlers.StatsProvider
	Config      *domain.LibraryConfig
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
}

// SetupRouter sets up the HTTP router
func SetupRouter(s Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log, s.MultiLogger))
	router.Use(middleware.Recovery(log, s.MultiLogger))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(s.Monitor, s.Stats, Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		bookHandler := handlers.NewBookHandler(s.Library, s.Config.BooksDir, log)
		books := v1.Group("/books")
		{
			books.GET("", bookHandler.ListBooks)
			books.POST("", bookHandler.InsertBooks)
			books.POST("/scan", bookHandler.ScanBooks)
			books.GET("/watch", bookHandler.WatchBooks)
			books.GET("/:id", bookHandler.GetBook)
			books.DELETE("/:id", bookHandler.DeleteBook)
		}

		downloadHandler := handlers.NewDownloadHandler(s.Monitor, s.Tracker, s.Stats, log)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.GET("/watch", downloadHandler.WatchDownloads)
			downloads.GET("/:id", downloadHandler.GetDownload)
			downloads.POST("/:id/pause", downloadHandler.PauseDownload)
			downloads.POST("/:id/resume", downloadHandler.ResumeDownload)
			downloads.POST("/:id/cancel", downloadHandler.CancelDownload)
		}

		chunkPlanner := domain.NewChunkPlanner(s.Config.ChunkSize)
		chunkHandler := handlers.NewChunkHandler(&chunkPlanner, s.Locator)
		v1.GET("/chunks", chunkHandler.GetChunks)
		v1.GET("/parts", chunkHandler.GetParts)

		logsDir := s.Config.LogsDir()
		if s.MultiLogger != nil {
			logsDir = s.MultiLogger.GetLogsDir()
		}
		logHandler := handlers.NewLogHandler(logsDir)
		logWebSocketHandler := handlers.NewLogWebSocketHandler(logsDir, log)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/stream", logWebSocketHandler.HandleWebSocket)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	// Status page
	router.StaticFS("/static", http.FS(web.StaticFS()))
	router.GET("/", serveIndexHTML)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

// serveIndexHTML serves the status page from the embedded templates
func serveIndexHTML(c *gin.Context) {
	content, err := web.IndexPage()
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to read page: %v", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", content)
}
