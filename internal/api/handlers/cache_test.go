package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/manga-translator/internal/database"
	"github.com/codyseavey/manga-translator/internal/models"
	"github.com/codyseavey/manga-translator/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestCacheService(t *testing.T) *services.TranslationCacheService {
	t.Helper()
	db, err := database.Open(":memory:", false)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	cfg := services.DefaultCacheConfig()
	cfg.CleanupOnPut = false
	cache := services.NewTranslationCacheService(db, cfg)
	t.Cleanup(func() {
		cache.Close()
		database.Close(db)
	})
	return cache
}

func newCacheRouter(cache *services.TranslationCacheService) *gin.Engine {
	h := NewCacheHandler(cache)
	router := gin.New()
	router.GET("/api/cache/stats", h.GetStats)
	router.GET("/api/cache/lookup", h.Lookup)
	router.POST("/api/cache", h.Put)
	router.POST("/api/cache/:id/rating", h.Rate)
	router.POST("/api/cache/:id/favorite", h.ToggleFavorite)
	router.GET("/api/cache/export", h.Export)
	router.DELETE("/api/cache", h.Clear)
	router.POST("/api/cache/cleanup", h.Cleanup)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func putEntry(t *testing.T, router *gin.Engine, text, translated string) uint {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/cache", PutCacheRequest{
		OriginalText:   text,
		TranslatedText: translated,
		TargetLanguage: "en",
		SourceLanguage: "ja",
		ModelUsed:      "gemini/test",
		Confidence:     0.9,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	lookup := doJSON(router, http.MethodGet, "/api/cache/lookup?target=en&text="+url.QueryEscape(text), nil)
	var entry models.TranslationCache
	if err := json.Unmarshal(lookup.Body.Bytes(), &entry); err != nil {
		t.Fatalf("Invalid lookup JSON: %v", err)
	}
	return entry.ID
}

func TestCacheHandlerPutAndLookup(t *testing.T) {
	router := newCacheRouter(newTestCacheService(t))

	putEntry(t, router, "こんにちは", "Hello")

	w := doJSON(router, http.MethodGet, "/api/cache/lookup?target=en&text="+url.QueryEscape("こんにちは"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var entry models.TranslationCache
	json.Unmarshal(w.Body.Bytes(), &entry)
	if entry.TranslatedText != "Hello" {
		t.Errorf("Expected Hello, got %q", entry.TranslatedText)
	}
	// putEntry looked it up once already; the response shows the pre-increment count
	if entry.UsageCount != 2 {
		t.Errorf("Expected usage 2 before this hit, got %d", entry.UsageCount)
	}

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"other target language misses", "/api/cache/lookup?target=fr&text="+url.QueryEscape("こんにちは"), http.StatusNotFound},
		{"unknown text misses", "/api/cache/lookup?target=en&text=nope", http.StatusNotFound},
		{"missing target", "/api/cache/lookup?text="+url.QueryEscape("こんにちは"), http.StatusBadRequest},
		{"missing text", "/api/cache/lookup?target=en", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodGet, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestCacheHandlerPutValidation(t *testing.T) {
	router := newCacheRouter(newTestCacheService(t))

	w := doJSON(router, http.MethodPost, "/api/cache", gin.H{"translated_text": "Hello"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing original_text, got %d", w.Code)
	}
}

func TestCacheHandlerRating(t *testing.T) {
	router := newCacheRouter(newTestCacheService(t))
	id := putEntry(t, router, "ありがとう", "Thanks")

	tests := []struct {
		name           string
		path           string
		rating         int
		expectedStatus int
	}{
		{"valid rating", "/api/cache/1/rating", 4, http.StatusOK},
		{"rating too high", "/api/cache/1/rating", 6, http.StatusBadRequest},
		{"rating negative", "/api/cache/1/rating", -1, http.StatusBadRequest},
		{"unknown id", "/api/cache/999/rating", 3, http.StatusNotFound},
		{"bad id", "/api/cache/abc/rating", 3, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, tt.path, RateRequest{Rating: tt.rating})
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}

	if id != 1 {
		t.Fatalf("Expected first entry to have id 1, got %d", id)
	}
	w := doJSON(router, http.MethodGet, "/api/cache/stats", nil)
	var stats models.CacheStatistics
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.AverageRating == nil || *stats.AverageRating != 4 {
		t.Errorf("Expected average rating 4, got %v", stats.AverageRating)
	}
}

func TestCacheHandlerFavoriteAndCleanup(t *testing.T) {
	router := newCacheRouter(newTestCacheService(t))
	putEntry(t, router, "すごい", "Amazing")

	w := doJSON(router, http.MethodPost, "/api/cache/1/favorite", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var entry models.TranslationCache
	json.Unmarshal(w.Body.Bytes(), &entry)
	if !entry.IsFavorited {
		t.Error("Expected entry to be favorited")
	}

	w = doJSON(router, http.MethodPost, "/api/cache/cleanup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var cleanup struct {
		Removed int64 `json:"removed"`
	}
	json.Unmarshal(w.Body.Bytes(), &cleanup)
	if cleanup.Removed != 0 {
		t.Errorf("Expected nothing removed, got %d", cleanup.Removed)
	}
}

func TestCacheHandlerExportAndClear(t *testing.T) {
	router := newCacheRouter(newTestCacheService(t))
	putEntry(t, router, "一", "One")
	putEntry(t, router, "二", "Two")

	w := doJSON(router, http.MethodGet, "/api/cache/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Disposition") == "" {
		t.Error("Expected export to be an attachment")
	}
	var export struct {
		Count   int                       `json:"count"`
		Entries []models.TranslationCache `json:"entries"`
	}
	json.Unmarshal(w.Body.Bytes(), &export)
	if export.Count != 2 || len(export.Entries) != 2 {
		t.Fatalf("Expected 2 exported entries, got %d", export.Count)
	}
	if export.Entries[0].TranslatedText != "One" {
		t.Errorf("Expected id order, got %q first", export.Entries[0].TranslatedText)
	}

	w = doJSON(router, http.MethodDelete, "/api/cache", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/api/cache/stats", nil)
	var stats models.CacheStatistics
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.TotalEntries != 0 {
		t.Errorf("Expected empty cache, got %d entries", stats.TotalEntries)
	}
}
