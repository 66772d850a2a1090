package api

import (
	"net/http"
	"strings"

	"github.com/adverant/nexus/pharmascan/internal/dictionary"
	"github.com/gin-gonic/gin"
)

// LookupHandler serves interactive dictionary search
type LookupHandler struct {
	Store *dictionary.Store
}

func NewLookupHandler(store *dictionary.Store) *LookupHandler {
	return &LookupHandler{Store: store}
}

func (h *LookupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search)         // GET /api/lookup/search?q=&limit=
	rg.GET("/drug/:slug", h.drug)       // GET /api/lookup/drug/:slug
	rg.GET("/categories", h.categories) // GET /api/lookup/categories[?atc=N02]
}

func (h *LookupHandler) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	limit := parseInt(c.Query("limit"), dictionary.DefaultSearchLimit)

	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Query parameter 'q' is required"})
		return
	}
	if len([]rune(query)) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Query must be at least 2 characters"})
		return
	}

	results := h.Store.Lookup(c.Request.Context(), query, limit)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"query":   query,
		"count":   len(results),
		"data":    results,
	})
}

func (h *LookupHandler) drug(c *gin.Context) {
	drug, ok := h.Store.BySlug(c.Request.Context(), c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Drug not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": drug})
}

// categories lists the ATC main groups, or the medicines under one code
// prefix when ?atc= is given
func (h *LookupHandler) categories(c *gin.Context) {
	if prefix := strings.TrimSpace(c.Query("atc")); prefix != "" {
		limit := parseInt(c.Query("limit"), dictionary.DefaultCategoryLimit)
		medicines := h.Store.ByCategory(c.Request.Context(), prefix, limit)
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"category": dictionary.CategoryName(strings.ToUpper(prefix)),
			"count":    len(medicines),
			"data":     medicines,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(dictionary.ATCMainGroups),
		"data":    dictionary.ATCMainGroups,
	})
}
