package app

import (
	"github.com/mabquiz/mabquiz-backend/internal/http/handlers"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *handlers.HealthHandler
	Sync       *handlers.SyncHandler
	Bandit     *handlers.BanditHandler
	Difficulty *handlers.DifficultyHandler
}

func wireHandlers(log *logger.Logger, cfg Config, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     handlers.NewHealthHandler(),
		Sync:       handlers.NewSyncHandler(serviceset.Sync),
		Bandit:     handlers.NewBanditHandler(serviceset.Bandit),
		Difficulty: handlers.NewDifficultyHandler(serviceset.Difficulty, serviceset.Jobs, cfg.WindowDays),
	}
}
