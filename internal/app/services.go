package app

import (
	"gorm.io/gorm"

	redisclient "github.com/mabquiz/mabquiz-backend/internal/clients/redis"
	jobdifficulty "github.com/mabquiz/mabquiz-backend/internal/jobs/difficulty"
	"github.com/mabquiz/mabquiz-backend/internal/jobs/runtime"
	"github.com/mabquiz/mabquiz-backend/internal/jobs/worker"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
	"github.com/mabquiz/mabquiz-backend/internal/scheduler"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

type Services struct {
	Bandit     services.BanditService
	Sync       services.SyncService
	Difficulty services.DifficultyService
	Jobs       services.JobService

	Cache     redisclient.MetricsCache
	JobWorker *worker.Worker
	Scheduler *scheduler.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	cache, err := redisclient.NewMetricsCache(log)
	if err != nil {
		log.Warn("redis unavailable, metrics caching disabled", "error", err.Error())
		cache = redisclient.NewNoopMetricsCache(log)
	}

	bandit := services.NewBanditService(db, log, reposet.QuestionArms, reposet.TopicArms, reposet.ResponseEvents, reposet.QuestionMetrics, nil)
	sync := services.NewSyncService(db, log, reposet.QuestionArms, reposet.TopicArms)
	difficulty := services.NewDifficultyService(db, log, reposet.ResponseEvents, reposet.QuestionMetrics, cache, cfg.MinSampleSize)
	jobs := services.NewJobService(log, reposet.JobRuns)

	registry := runtime.NewRegistry()
	if err := registry.Register(jobdifficulty.NewRecomputeHandler(log, difficulty)); err != nil {
		return Services{}, err
	}
	if err := registry.Register(jobdifficulty.NewCleanupHandler(log, difficulty)); err != nil {
		return Services{}, err
	}

	jobWorker := worker.New(db, log, reposet.JobRuns, registry, worker.Config{
		PollInterval: cfg.JobPollInterval,
		MaxAttempts:  cfg.JobMaxAttempts,
		RetryBase:    cfg.JobRetryBase,
		StaleRunning: cfg.JobStaleRunning,
		Concurrency:  cfg.WorkerConcurrency,
	})

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(log, jobs, cfg.RecomputeAt, cfg.WindowDays, cfg.MetricsMaxAgeDays)
	}

	return Services{
		Bandit:     bandit,
		Sync:       sync,
		Difficulty: difficulty,
		Jobs:       jobs,
		Cache:      cache,
		JobWorker:  jobWorker,
		Scheduler:  sched,
	}, nil
}
