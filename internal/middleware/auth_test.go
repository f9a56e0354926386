package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serve(router *gin.Engine, method, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminAuthRequire(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		adminKey       string
		authHeader     string
		expectedStatus int
		expectedCode   string
	}{
		{"no admin key configured allows clearing", "", "", http.StatusOK, ""},
		{"valid admin key", "cache-secret", "Bearer cache-secret", http.StatusOK, ""},
		{"case insensitive scheme", "cache-secret", "bearer cache-secret", http.StatusOK, ""},
		{"missing header", "cache-secret", "", http.StatusUnauthorized, CodeAuthRequired},
		{"raw key without scheme", "cache-secret", "cache-secret", http.StatusUnauthorized, CodeAuthInvalidFormat},
		{"basic scheme", "cache-secret", "Basic Y2FjaGU=", http.StatusUnauthorized, CodeAuthInvalidFormat},
		{"wrong key", "cache-secret", "Bearer nope", http.StatusUnauthorized, CodeAuthInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.DELETE("/api/cache", NewAdminAuth(tt.adminKey).Require(), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"cleared": true})
			})

			w := serve(router, http.MethodDelete, "/api/cache", tt.authHeader)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedCode != "" {
				var body map[string]string
				json.Unmarshal(w.Body.Bytes(), &body)
				if body["code"] != tt.expectedCode {
					t.Errorf("Expected code %q, got %q", tt.expectedCode, body["code"])
				}
			} else if !strings.Contains(w.Body.String(), "cleared") {
				t.Errorf("Expected handler to run, got %s", w.Body.String())
			}
		})
	}
}

func TestAdminAuthVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		adminKey       string
		authHeader     string
		expectedStatus int
		expectedValid  bool
	}{
		{"auth disabled is always valid", "", "", http.StatusOK, true},
		{"valid key", "k1", "Bearer k1", http.StatusOK, true},
		{"invalid key", "k1", "Bearer k2", http.StatusUnauthorized, false},
		{"missing header", "k1", "", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/api/auth/verify", NewAdminAuth(tt.adminKey).Verify)

			w := serve(router, http.MethodGet, "/api/auth/verify", tt.authHeader)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var body struct {
				Valid bool `json:"valid"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if body.Valid != tt.expectedValid {
				t.Errorf("Expected valid=%v, got %s", tt.expectedValid, w.Body.String())
			}
		})
	}
}

func TestAdminAuthStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, key := range []string{"", "some-key"} {
		router := gin.New()
		router.GET("/api/auth/status", NewAdminAuth(key).Status)

		w := serve(router, http.MethodGet, "/api/auth/status", "")
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}

		expected := `"auth_enabled":false`
		if key != "" {
			expected = `"auth_enabled":true`
		}
		if !strings.Contains(w.Body.String(), expected) {
			t.Errorf("Expected %s, got %s", expected, w.Body.String())
		}
	}
}
