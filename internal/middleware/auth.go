package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Auth failure codes returned in the "code" field
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeAuthInvalidFormat = "AUTH_INVALID_FORMAT"
	CodeAuthInvalidKey    = "AUTH_INVALID_KEY"
)

// AdminAuth guards destructive cache endpoints with a shared admin key.
// An empty key disables auth (local dev).
type AdminAuth struct {
	key string
}

// NewAdminAuth creates the guard for key (ADMIN_KEY)
func NewAdminAuth(key string) *AdminAuth {
	return &AdminAuth{key: key}
}

// Enabled reports whether a key is configured
func (a *AdminAuth) Enabled() bool {
	return a.key != ""
}

// check validates an "Authorization: Bearer <key>" header. It returns an empty code on success.
func (a *AdminAuth) check(authHeader string) (code, message string) {
	if authHeader == "" {
		return CodeAuthRequired, "Authorization header required"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return CodeAuthInvalidFormat, "Invalid authorization format. Use: Bearer <admin_key>"
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(a.key)) != 1 {
		return CodeAuthInvalidKey, "Invalid admin key"
	}
	return "", ""
}

// Require returns middleware rejecting requests without the admin key
func (a *AdminAuth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		if code, message := a.check(c.GetHeader("Authorization")); code != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": message,
				"code":  code,
			})
			return
		}

		c.Next()
	}
}

// Verify lets clients check whether their stored key is still valid
func (a *AdminAuth) Verify(c *gin.Context) {
	if !a.Enabled() {
		c.JSON(http.StatusOK, gin.H{
			"valid":        true,
			"auth_enabled": false,
			"message":      "Authentication is not configured",
		})
		return
	}

	if code, message := a.check(c.GetHeader("Authorization")); code != "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"valid": false,
			"error": message,
			"code":  code,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":        true,
		"auth_enabled": true,
	})
}

// Status is public and reports whether auth is enabled
func (a *AdminAuth) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"auth_enabled": a.Enabled(),
	})
}
