package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/manga-translator/internal/api/handlers"
	"github.com/codyseavey/manga-translator/internal/metrics"
	"github.com/codyseavey/manga-translator/internal/middleware"
	"github.com/codyseavey/manga-translator/internal/services"
)

// Deps are the services the HTTP API is built on
type Deps struct {
	Cache         *services.TranslationCacheService
	Sessions      *services.SessionManager
	Storage       *services.OutputStorage
	Pipeline      *services.Pipeline
	AdminKey      string
	CORSOrigins   []string
	AutoTranslate bool
}

// NewRouter builds the gin engine with every route registered
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(corsMiddleware(deps.CORSOrigins))
	router.Use(metrics.HTTPMetrics("/metrics", "/api/sessions/:id/events"))

	auth := middleware.NewAdminAuth(deps.AdminKey)
	cacheHandler := handlers.NewCacheHandler(deps.Cache)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Storage, deps.AutoTranslate)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"configured":    deps.Pipeline != nil && deps.Pipeline.IsConfigured(),
			"burn_in":       deps.Pipeline != nil && deps.Pipeline.CanRender(),
			"auth_enabled":  auth.Enabled(),
			"cache_enabled": deps.Cache != nil && deps.Cache.DB() != nil,
		})
	})

	api := router.Group("/api")
	{
		api.GET("/auth/status", auth.Status)
		api.GET("/auth/verify", auth.Verify)

		cache := api.Group("/cache")
		cache.GET("/stats", cacheHandler.GetStats)
		cache.GET("/lookup", cacheHandler.Lookup)
		cache.POST("", cacheHandler.Put)
		cache.POST("/:id/rating", cacheHandler.Rate)
		cache.POST("/:id/favorite", cacheHandler.ToggleFavorite)

		// Destructive or bulk operations
		admin := cache.Group("", auth.Require())
		admin.GET("/export", cacheHandler.Export)
		admin.DELETE("", cacheHandler.Clear)
		admin.POST("/cleanup", cacheHandler.Cleanup)

		sessions := api.Group("/sessions")
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.PUT("/:id/page", sessionHandler.SetPage)
		sessions.GET("/:id/image", sessionHandler.GetImage)
		sessions.POST("/:id/auto-translate", sessionHandler.ToggleAutoTranslate)
		sessions.POST("/:id/translate", sessionHandler.Translate)
		sessions.POST("/:id/reset", sessionHandler.ResetPages)
		sessions.DELETE("/:id", sessionHandler.DeleteSession)
		sessions.GET("/:id/events", sessionHandler.Events)
	}

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}
