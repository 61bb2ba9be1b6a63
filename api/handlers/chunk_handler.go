package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/zimshelf/internal/domain"
	"github.com/yourusername/zimshelf/internal/zimfile"
)

// ChunkHandler exposes the chunk plan for a URL and the parts of a local book
type ChunkHandler struct {
	planner *domain.ChunkPlanner
	locator *zimfile.Locator
}

// NewChunkHandler creates a new chunk handler
func NewChunkHandler(planner *domain.ChunkPlanner, locator *zimfile.Locator) *ChunkHandler {
	return &ChunkHandler{
		planner: planner,
		locator: locator,
	}
}

// ChunkResponse describes one planned chunk
type ChunkResponse struct {
	FileName  string `json:"file_name"`
	FinalName string `json:"final_name"`
	Range     string `json:"range"`
	OpenEnded bool   `json:"open_ended"`
}

// PartsResponse describes the files backing a book on disk
type PartsResponse struct {
	File       string   `json:"file"`
	Parts      []string `json:"parts"`
	HasPart    bool     `json:"has_part"`
	SizeOnDisk int64    `json:"size_on_disk"`
}

// GetChunks handles GET /api/v1/chunks?url=...&size=...
func (h *ChunkHandler) GetChunks(c *gin.Context) {
	url := c.Query("url")
	if domain.FileNameFromURL(url) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url does not name a file"})
		return
	}
	size, err := strconv.ParseInt(c.Query("size"), 10, 64)
	if err != nil || size < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a non-negative integer"})
		return
	}

	chunks := h.planner.ComputeChunks(url, size, 0)
	response := make([]ChunkResponse, 0, len(chunks))
	for _, chunk := range chunks {
		response = append(response, ChunkResponse{
			FileName:  chunk.FileName,
			FinalName: chunk.FinalName(),
			Range:     chunk.RangeHeader(),
			OpenEnded: chunk.OpenEnded,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"size":       size,
		"chunk_size": h.planner.ChunkSize,
		"nominal":    h.planner.NominalFileName(url, size),
		"chunks":     response,
	})
}

// GetParts handles GET /api/v1/parts?file=...
func (h *ChunkHandler) GetParts(c *gin.Context) {
	file := c.Query("file")
	if file == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'file' is required"})
		return
	}

	parts := h.locator.AllParts(file)
	if parts == nil {
		parts = []string{}
	}
	c.JSON(http.StatusOK, PartsResponse{
		File:       file,
		Parts:      parts,
		HasPart:    h.locator.HasPart(file),
		SizeOnDisk: h.locator.SizeOnDisk(file),
	})
}
