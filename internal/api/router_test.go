package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/manga-translator/internal/database"
	"github.com/codyseavey/manga-translator/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, adminKey string) *gin.Engine {
	t.Helper()
	db, err := database.Open(":memory:", false)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	cache := services.NewTranslationCacheService(db, services.DefaultCacheConfig())
	pipeline := services.NewPipeline(nil, nil, cache, nil, services.DefaultStampStyle())
	sessions := services.NewSessionManager(pipeline, services.SessionOptions{TargetLanguage: "en"})
	t.Cleanup(func() {
		sessions.CloseAll()
		cache.Close()
		database.Close(db)
	})

	return NewRouter(Deps{
		Cache:       cache,
		Sessions:    sessions,
		Storage:     services.NewOutputStorage(t.TempDir()),
		Pipeline:    pipeline,
		AdminKey:    adminKey,
		CORSOrigins: []string{"*"},
	})
}

func request(router *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(t, "secret")

	tests := []struct {
		name           string
		method         string
		path           string
		auth           string
		expectedStatus int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"auth status", http.MethodGet, "/api/auth/status", "", http.StatusOK},
		{"stats are public", http.MethodGet, "/api/cache/stats", "", http.StatusOK},
		{"export needs admin key", http.MethodGet, "/api/cache/export", "", http.StatusUnauthorized},
		{"export with admin key", http.MethodGet, "/api/cache/export", "Bearer secret", http.StatusOK},
		{"clear needs admin key", http.MethodDelete, "/api/cache", "", http.StatusUnauthorized},
		{"clear with wrong key", http.MethodDelete, "/api/cache", "Bearer nope", http.StatusUnauthorized},
		{"cleanup with admin key", http.MethodPost, "/api/cache/cleanup", "Bearer secret", http.StatusOK},
		{"create session", http.MethodPost, "/api/sessions", "", http.StatusCreated},
		{"unknown session", http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(router, tt.method, tt.path, tt.auth)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestHealthReportsUnconfiguredBackend(t *testing.T) {
	router := newTestRouter(t, "")

	w := request(router, http.MethodGet, "/health", "")
	body := w.Body.String()
	if !strings.Contains(body, `"configured":false`) {
		t.Errorf("Expected configured=false without a backend, got %s", body)
	}
	if !strings.Contains(body, `"burn_in":false`) {
		t.Errorf("Expected burn_in=false without a renderer, got %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/cache/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard allow-origin, got %q", got)
	}
}
