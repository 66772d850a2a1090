package api

import (
	"net/http"

	"github.com/adverant/nexus/pharmascan/internal/storage"
	"github.com/gin-gonic/gin"
)

// HistoryHandler serves stored scans
type HistoryHandler struct {
	Repo storage.Repository
}

func NewHistoryHandler(repo storage.Repository) *HistoryHandler {
	return &HistoryHandler{Repo: repo}
}

func (h *HistoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)          // GET /api/history
	rg.GET("/:id", h.get)       // GET /api/history/:id
	rg.DELETE("/:id", h.delete) // DELETE /api/history/:id
}

func (h *HistoryHandler) list(c *gin.Context) {
	if h.Repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "history is not configured"})
		return
	}
	scans, err := h.Repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch history", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(scans),
		"data":    scans,
	})
}

func (h *HistoryHandler) get(c *gin.Context) {
	if h.Repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "history is not configured"})
		return
	}
	scan, err := h.Repo.Get(c.Request.Context(), c.Param("id"))
	if err == storage.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Scan not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch scan", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": scan})
}

func (h *HistoryHandler) delete(c *gin.Context) {
	if h.Repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "history is not configured"})
		return
	}
	deleted, err := h.Repo.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to delete scan", "detail": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Scan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Scan deleted"})
}
