package app

import (
	"github.com/gin-gonic/gin"

	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
	"github.com/mabquiz/mabquiz-backend/internal/server"
)

func wireRouter(log *logger.Logger, cfg Config, handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		Log:               log,
		ServiceName:       "mabquiz-backend",
		AllowOrigins:      cfg.AllowOrigins,
		HealthHandler:     handlerset.Health,
		SyncHandler:       handlerset.Sync,
		BanditHandler:     handlerset.Bandit,
		DifficultyHandler: handlerset.Difficulty,
	})
}
