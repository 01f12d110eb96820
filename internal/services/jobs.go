package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

const (
	JobTypeDifficultyRecompute = "difficulty_recompute"
	JobTypeMetricsCleanup      = "metrics_cleanup"
)

// DifficultyRecomputePayload is the jsonb payload of a
// difficulty_recompute job. Empty QuestionIDs means "every eligible
// question".
type DifficultyRecomputePayload struct {
	QuestionIDs []string `json:"question_ids,omitempty"`
	WindowDays  int      `json:"window_days"`
}

// MetricsCleanupPayload is the jsonb payload of a metrics_cleanup job.
type MetricsCleanupPayload struct {
	MaxAgeDays int `json:"max_age_days"`
}

type JobService interface {
	EnqueueDifficultyRecompute(ctx context.Context, questionIDs []string, windowDays int) (*domain.JobRun, error)
	EnqueueMetricsCleanup(ctx context.Context, maxAgeDays int) (*domain.JobRun, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRun, error)
}

type jobService struct {
	log  *logger.Logger
	jobs repos.JobRunRepo
}

func NewJobService(baseLog *logger.Logger, jobs repos.JobRunRepo) JobService {
	return &jobService{
		log:  baseLog.With("service", "JobService"),
		jobs: jobs,
	}
}

func (s *jobService) EnqueueDifficultyRecompute(ctx context.Context, questionIDs []string, windowDays int) (*domain.JobRun, error) {
	payload, err := json.Marshal(DifficultyRecomputePayload{
		QuestionIDs: questionIDs,
		WindowDays:  windowDays,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.JobRun{
		ID:        uuid.New(),
		JobType:   JobTypeDifficultyRecompute,
		Status:    domain.JobStatusQueued,
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info("difficulty recompute enqueued",
		"job_id", job.ID.String(),
		"question_count", len(questionIDs),
		"window_days", windowDays,
	)
	return job, nil
}

func (s *jobService) EnqueueMetricsCleanup(ctx context.Context, maxAgeDays int) (*domain.JobRun, error) {
	payload, err := json.Marshal(MetricsCleanupPayload{MaxAgeDays: maxAgeDays})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.JobRun{
		ID:        uuid.New(),
		JobType:   JobTypeMetricsCleanup,
		Status:    domain.JobStatusQueued,
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Info("metrics cleanup enqueued",
		"job_id", job.ID.String(),
		"max_age_days", maxAgeDays,
	)
	return job, nil
}

func (s *jobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRun, error) {
	return s.jobs.GetByID(ctx, nil, id)
}
