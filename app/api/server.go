package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/api/health"},
	}))

	r.Use(gin.Recovery())

	// CORS for the dashboard
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, version)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string, version string) {
	api := r.Group("/api")
	{
		api.GET("/guidelines", handler.ListGuidelines)
		api.GET("/guidelines/:id", handler.GetGuideline)
		api.GET("/sources", handler.GetSources)
		api.GET("/specialties", handler.GetSpecialties)
		api.GET("/stats", handler.GetStats)
		api.GET("/health", handler.GetHealth)
		api.GET("/runs", handler.ListRuns)
	}

	// Manual refresh is only exposed with an access key
	if apiAccessKey != "" {
		api.POST("/refresh", authMiddleware(apiAccessKey), handler.APIRefresh)
		slog.Info("Refresh endpoint enabled with authentication")
	} else {
		slog.Info("Refresh endpoint disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"guidelines":  "/api/guidelines?source=&specialty=&year=&limit=&offset=",
			"guideline":   "/api/guidelines/<id>",
			"sources":     "/api/sources",
			"specialties": "/api/specialties",
			"stats":       "/api/stats",
			"health":      "/api/health",
			"runs":        "/api/runs",
		}

		if apiAccessKey != "" {
			endpoints["refresh"] = "/api/refresh (POST, requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Guideline Hub",
			"version":     version,
			"description": "Clinical practice guideline aggregator with AI summaries",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"refresh_enabled": apiAccessKey != "",
				"auth_required":   apiAccessKey != "",
				"header":          "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
