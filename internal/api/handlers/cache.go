package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/codyseavey/manga-translator/internal/metrics"
	"github.com/codyseavey/manga-translator/internal/services"
)

type CacheHandler struct {
	cache *services.TranslationCacheService
}

func NewCacheHandler(cache *services.TranslationCacheService) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// PutCacheRequest is the body of POST /api/cache
type PutCacheRequest struct {
	OriginalText   string  `json:"original_text" binding:"required"`
	TranslatedText string  `json:"translated_text"`
	TargetLanguage string  `json:"target_language" binding:"required"`
	SourceLanguage string  `json:"source_language"`
	ModelUsed      string  `json:"model_used"`
	Confidence     float64 `json:"confidence"`
	Context        string  `json:"context"`
}

// RateRequest is the body of POST /api/cache/:id/rating
type RateRequest struct {
	Rating int `json:"rating" binding:"required"`
}

// GetStats returns aggregate cache statistics
// GET /api/cache/stats
func (h *CacheHandler) GetStats(c *gin.Context) {
	stats, err := h.cache.Statistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Lookup finds a cached translation. A hit counts as a use.
// GET /api/cache/lookup?text=...&target=en&source=ja&context=...
func (h *CacheHandler) Lookup(c *gin.Context) {
	text := c.Query("text")
	target := c.Query("target")
	if text == "" || target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and target are required"})
		return
	}

	entry, ok := h.cache.Get(text, target, c.DefaultQuery("source", "auto"), c.Query("context"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cached translation"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Put stores a translation, overwriting any entry with the same fingerprint
// POST /api/cache
func (h *CacheHandler) Put(c *gin.Context) {
	var req PutCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.cache.Put(services.CacheEntry{
		OriginalText:   req.OriginalText,
		TranslatedText: req.TranslatedText,
		TargetLanguage: req.TargetLanguage,
		SourceLanguage: req.SourceLanguage,
		ModelUsed:      req.ModelUsed,
		Confidence:     req.Confidence,
		Context:        req.Context,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "translation cached",
		"fingerprint": services.Fingerprint(req.OriginalText, req.Context),
	})
}

// Rate sets a 1-5 rating on an entry
// POST /api/cache/:id/rating
func (h *CacheHandler) Rate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.cache.Rate(id, req.Rating); err != nil {
		if errors.Is(err, services.ErrInvalidRating) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.respondEntry(c, id)
}

// ToggleFavorite flips the favorite flag on an entry
// POST /api/cache/:id/favorite
func (h *CacheHandler) ToggleFavorite(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.cache.ToggleFavorite(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.respondEntry(c, id)
}

// Export dumps every entry as a JSON attachment
// GET /api/cache/export
func (h *CacheHandler) Export(c *gin.Context) {
	entries, err := h.cache.Export()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := "translation-cache-" + time.Now().UTC().Format("20060102-150405") + ".json"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.JSON(http.StatusOK, gin.H{
		"exported_at": time.Now().UTC(),
		"count":       len(entries),
		"entries":     entries,
	})
}

// Clear deletes every entry, favorites included
// DELETE /api/cache
func (h *CacheHandler) Clear(c *gin.Context) {
	if err := h.cache.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.UpdateCacheMetrics(h.cache.DB())
	c.JSON(http.StatusOK, gin.H{"message": "cache cleared"})
}

// Cleanup runs the eviction policies now and reports what was removed
// POST /api/cache/cleanup
func (h *CacheHandler) Cleanup(c *gin.Context) {
	report, err := h.cache.Cleanup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.UpdateCacheMetrics(h.cache.DB())
	c.JSON(http.StatusOK, gin.H{
		"message": "cleanup completed",
		"removed": report.Total(),
		"report":  report,
	})
}

// respondEntry writes the entry after a mutation; unknown ids were a no-op and answer 404
func (h *CacheHandler) respondEntry(c *gin.Context, id uint) {
	entry, err := h.cache.Find(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
