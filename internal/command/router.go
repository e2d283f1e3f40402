package command

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"support-dashboard/internal/config"
	"support-dashboard/internal/handlers"
	"support-dashboard/internal/middleware"
	"support-dashboard/internal/observability"
	"support-dashboard/internal/telemetry"
	"support-dashboard/internal/ws"
)

type routerDeps struct {
	cfg       *config.Config
	uploads   *handlers.UploadHandler
	history   *handlers.HistoryHandler
	health    *handlers.HealthHandler
	websocket *ws.WebSocketHandler
	socketIO  gin.HandlerFunc
	sessions  handlers.SessionCounter
	limiter   *middleware.IPRateLimiter
	audit     *telemetry.AuditEmitter
	diskStore bool
}

func newRouter(d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.LoggingMiddleware(),
		observability.HTTPMetricsMiddleware(),
		otelgin.Middleware(AppName),
		middleware.CORSMiddleware(d.cfg.AllowedOrigins()),
	)

	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/healthz", d.health.Health)

	limited := middleware.RateLimitMiddleware(d.limiter)
	api := router.Group("/api", limited)
	api.GET("/messages", d.history.ListMessages)
	api.GET("/transactions", d.history.ListTransactions)

	router.POST("/upload", limited, d.uploads.Upload)
	if d.diskStore {
		router.Static("/uploads", d.cfg.UploadPath())
	}

	router.GET("/ws", d.websocket.Handle)
	if d.socketIO != nil {
		router.GET("/socket.io/*any", d.socketIO)
		router.POST("/socket.io/*any", d.socketIO)
	}

	handlers.RegisterDebugRoutes(router, d.audit, d.sessions, d.cfg.Env == "development")

	static := http.FileServer(http.Dir(d.cfg.PublicDir))
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		static.ServeHTTP(c.Writer, c.Request)
	})
	return router
}
