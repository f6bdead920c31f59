package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stemsi/exstem-viva/internal/config"
	"github.com/stemsi/exstem-viva/internal/handler"
	"github.com/stemsi/exstem-viva/internal/middleware"
	"github.com/stemsi/exstem-viva/internal/response"
)

// Handlers groups all handler instances for route setup. Generate is nil
// when no generator is configured.
type Handlers struct {
	WS       *handler.WSHandler
	Generate *handler.GenerateHandler
	Admin    *handler.AdminHandler
	Monitor  *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth *middleware.Authenticator,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Compress large responses for clients that accept br.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus scrape endpoint.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ─── 1. Viva API (Service JWT, Rate Limited) ───────────────────────
	if handlers.Generate != nil {
		viva := router.Group("/viva/api")
		viva.Use(
			middleware.NoStore(),
			middleware.RequireServiceJWT(auth),
			limiter.Middleware(),
		)
		{
			viva.POST("/generate", handlers.Generate.Generate)
		}
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(auth))
	{
		ws.GET("/viva/stream", handlers.WS.VivaStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.NoStore(), middleware.RequireAdminJWT(auth))
	{
		adminAPI.GET("/attempts",
			middleware.RequirePermission(middleware.PermAttemptsRead),
			handlers.Admin.ListAttempts,
		)
		adminAPI.GET("/sessions/:session_id/events",
			middleware.RequirePermission(middleware.PermEventsRead),
			handlers.Admin.ListSessionEvents,
		)
		adminAPI.GET("/experiments/:experiment_id/violations",
			middleware.RequirePermission(middleware.PermEventsRead),
			handlers.Admin.ViolationSummary,
		)
		adminAPI.GET("/experiments/:experiment_id/monitor",
			middleware.RequireAnyPermission(middleware.PermAttemptsRead, middleware.PermEventsRead),
			handlers.Monitor.MonitorExperimentSSE,
		)
	}

	return router
}
