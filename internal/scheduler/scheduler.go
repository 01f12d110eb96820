package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

// Scheduler enqueues the nightly full difficulty recompute and the
// weekly metrics cleanup. The actual work runs on the job worker, so a
// missed tick costs nothing but freshness.
type Scheduler struct {
	scheduler         *gocron.Scheduler
	log               *logger.Logger
	jobs              services.JobService
	recomputeAt       string
	windowDays        int
	metricsMaxAgeDays int
}

func New(baseLog *logger.Logger, jobs services.JobService, recomputeAt string, windowDays, metricsMaxAgeDays int) *Scheduler {
	if recomputeAt == "" {
		recomputeAt = "02:00"
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	if metricsMaxAgeDays <= 0 {
		metricsMaxAgeDays = 90
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:         s,
		log:               baseLog.With("component", "Scheduler"),
		jobs:              jobs,
		recomputeAt:       recomputeAt,
		windowDays:        windowDays,
		metricsMaxAgeDays: metricsMaxAgeDays,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Day().At(s.recomputeAt).Do(s.enqueueRecompute); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Week().At("03:00").Do(s.enqueueCleanup); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.log.Info("scheduler started",
		"recompute_at", s.recomputeAt,
		"window_days", s.windowDays,
		"metrics_max_age_days", s.metricsMaxAgeDays,
	)
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) enqueueRecompute() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := s.jobs.EnqueueDifficultyRecompute(ctx, nil, s.windowDays)
	if err != nil {
		s.log.Error("failed to enqueue nightly difficulty recompute", "error", err.Error())
		return
	}
	s.log.Info("nightly difficulty recompute enqueued", "job_id", job.ID.String())
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := s.jobs.EnqueueMetricsCleanup(ctx, s.metricsMaxAgeDays)
	if err != nil {
		s.log.Error("failed to enqueue weekly metrics cleanup", "error", err.Error())
		return
	}
	s.log.Info("weekly metrics cleanup enqueued", "job_id", job.ID.String())
}
