package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/app"
	"github.com/yourusername/zimshelf/internal/domain"
)

// BookHandler handles requests for books on disk
type BookHandler struct {
	library  *app.BookLibrary
	booksDir string
	logger   *zap.Logger
}

// NewBookHandler creates a new book handler
func NewBookHandler(library *app.BookLibrary, booksDir string, logger *zap.Logger) *BookHandler {
	return &BookHandler{
		library:  library,
		booksDir: booksDir,
		logger:   logger,
	}
}

// InsertBooksRequest lists books to register by hand
type InsertBooksRequest struct {
	Books []struct {
		Book domain.Book `json:"book"`
		File string      `json:"file" binding:"required"`
	} `json:"books" binding:"required,dive"`
}

// ScanRequest names the directory to scan; empty means the books directory
type ScanRequest struct {
	Dir string `json:"dir"`
}

// ListBooks handles GET /api/v1/books. With ?book_id= it returns that one book.
func (h *BookHandler) ListBooks(c *gin.Context) {
	if bookID := c.Query("book_id"); bookID != "" {
		book, err := h.library.BookByID(bookID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
		return
	}

	books, err := h.library.List()
	if err != nil {
		h.logger.Error("Failed to list books", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, books)
}

// GetBook handles GET /api/v1/books/:id
func (h *BookHandler) GetBook(c *gin.Context) {
	id, ok := parseDatabaseID(c)
	if !ok {
		return
	}

	book, err := h.library.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, book)
}

// InsertBooks handles POST /api/v1/books
func (h *BookHandler) InsertBooks(c *gin.Context) {
	var req InsertBooksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	books := make([]*domain.BookOnDisk, 0, len(req.Books))
	for i, b := range req.Books {
		if b.Book.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("books[%d]: book.id is required", i)})
			return
		}
		books = append(books, domain.NewBookOnDisk(b.Book, b.File))
	}
	if err := h.library.Insert(books); err != nil {
		h.logger.Error("Failed to insert books", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"inserted": len(books)})
}

// DeleteBook handles DELETE /api/v1/books/:id. The archive is removed from
// disk unless keep_file=true.
func (h *BookHandler) DeleteBook(c *gin.Context) {
	id, ok := parseDatabaseID(c)
	if !ok {
		return
	}

	var err error
	if c.Query("keep_file") == "true" {
		err = h.library.Delete(id)
	} else {
		err = h.library.DeleteBook(id)
	}
	if err != nil {
		h.logger.Error("Failed to delete book", zap.Uint("database_id", id), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

// ScanBooks handles POST /api/v1/books/scan
func (h *BookHandler) ScanBooks(c *gin.Context) {
	var req ScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	dir := req.Dir
	if dir == "" {
		dir = h.booksDir
	}

	books, err := h.library.Scan(dir)
	if err != nil {
		h.logger.Error("Failed to scan books", zap.String("dir", dir), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dir":   dir,
		"count": len(books),
		"books": books,
	})
}

// WatchBooks handles GET /api/v1/books/watch
func (h *BookHandler) WatchBooks(c *gin.Context) {
	streamFeed(c, h.library.Books(), h.logger)
}
