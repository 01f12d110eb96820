package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mabquiz/mabquiz-backend/internal/http/handlers"
	"github.com/mabquiz/mabquiz-backend/internal/http/middleware"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log               *logger.Logger
	ServiceName       string
	AllowOrigins      []string
	HealthHandler     *handlers.HealthHandler
	SyncHandler       *handlers.SyncHandler
	BanditHandler     *handlers.BanditHandler
	DifficultyHandler *handlers.DifficultyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID", "X-Session-ID"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	difficulty := router.Group("/api/difficulty")
	{
		difficulty.GET("/calculate/:question_id", cfg.DifficultyHandler.CalculateSingle)
		difficulty.POST("/calculate/batch", cfg.DifficultyHandler.CalculateBatch)
		difficulty.GET("/metrics/batch", cfg.DifficultyHandler.GetMetricsBatch)
		difficulty.GET("/metrics/:question_id", cfg.DifficultyHandler.GetMetrics)
		difficulty.POST("/responses", cfg.DifficultyHandler.SubmitResponse)
		difficulty.GET("/stats/global", cfg.DifficultyHandler.GlobalStats)
	}

	// Protected: identity comes from the gateway-verified headers.
	protected := router.Group("/api")
	protected.Use(middleware.Identity())
	{
		protected.POST("/sync/mab", cfg.SyncHandler.Sync)
		protected.GET("/sync/mab/status", cfg.SyncHandler.Status)
		protected.POST("/bandit/responses", cfg.BanditHandler.RecordResponse)
		protected.GET("/bandit/next", cfg.BanditHandler.Next)
	}

	return router
}
