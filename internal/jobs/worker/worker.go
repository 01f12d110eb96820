package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/jobs/runtime"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	RetryBase    time.Duration
	StaleRunning time.Duration
	Concurrency  int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 2 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Worker polls the job_run queue and dispatches claimed rows to
// registered handlers. Claiming uses FOR UPDATE SKIP LOCKED, so any
// number of workers across processes can share the queue.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	cfg      Config
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		cfg:      cfg.withDefaults(),
	}
}

func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.loop(ctx)
	}
	w.log.Info("job worker started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval.String())
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, nil, w.cfg.MaxAttempts, w.cfg.RetryBase, w.cfg.StaleRunning)
			if err != nil {
				w.log.Warn("claim next runnable failed", "error", err.Error())
				continue
			}
			if job == nil {
				continue
			}
			w.dispatch(ctx, job)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job *domain.JobRun) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler registered", "job_type", job.JobType, "job_id", job.ID.String())
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	// A panicking handler must not take the loop down with it.
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panic", "job_id", job.ID.String(), "job_type", job.JobType, "panic", fmt.Sprint(r))
			jc.Fail("panic", fmt.Errorf("%v", r))
		}
	}()

	if err := h.Run(jc); err != nil {
		w.log.Warn("job handler failed", "job_id", job.ID.String(), "job_type", job.JobType, "error", err.Error())
	}
}
