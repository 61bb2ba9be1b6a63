package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/zimshelf/internal/domain"
)

// statusForError maps domain errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrBookNotFound), errors.Is(err, domain.ErrDownloadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDownloadExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidBook):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func parseDownloadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid download id"})
		return 0, false
	}
	return id, true
}

func parseDatabaseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return 0, false
	}
	return uint(id), true
}
